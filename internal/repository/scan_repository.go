package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/asmorodws/simlok2-sub012/internal/model"
)

// ScanRepo provides data access to the append-only scan_events table.
// Every successful field verification inserts a new row; nothing here
// deduplicates, because a second scan of the same permit is exactly the
// kind of event the audit trail must capture.  Rows are never updated and
// are removed only by the ON DELETE CASCADE from permits.
type ScanRepo struct {
	db *sql.DB
}

// NewScanRepo returns a new ScanRepo bound to the given database.
func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{db: db} }

// Create appends a scan event and populates the generated ID and the
// database-assigned timestamp on the provided record.  ScannedBy must
// reference an existing user and PermitID an existing permit; foreign keys
// enforce both.
func (r *ScanRepo) Create(ctx context.Context, ev *model.ScanEvent) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_events (permit_id, scanned_by, location, notes) VALUES (?, ?, ?, ?)`,
		ev.PermitID, ev.ScannedBy, ev.Location, ev.Notes,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	// Query back the row to populate the DB-assigned scanned_at, so the
	// caller reports the same timestamp the audit trail stores.
	return r.db.QueryRowContext(ctx,
		`SELECT scanned_at FROM scan_events WHERE id = ?`, ev.ID,
	).Scan(&ev.ScannedAt)
}

// ListByPermit returns all scan events for a permit ordered newest first.
// When no events exist, an empty slice is returned.
func (r *ScanRepo) ListByPermit(ctx context.Context, permitID uint64) ([]model.ScanEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, permit_id, scanned_by, scanned_at, location, notes
		 FROM scan_events
		 WHERE permit_id = ?
		 ORDER BY scanned_at DESC, id DESC`,
		permitID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.ScanEvent, 0)
	for rows.Next() {
		var ev model.ScanEvent
		var location, notes sql.NullString
		if err := rows.Scan(&ev.ID, &ev.PermitID, &ev.ScannedBy, &ev.ScannedAt, &location, &notes); err != nil {
			return nil, err
		}
		if location.Valid {
			v := location.String
			ev.Location = &v
		}
		if notes.Valid {
			v := notes.String
			ev.Notes = &v
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// HasBeenScanned reports whether at least one scan event exists for the
// permit.  Callers that want "already scanned" UX use this rather than
// expecting Create to reject repeats.
func (r *ScanRepo) HasBeenScanned(ctx context.Context, permitID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM scan_events WHERE permit_id = ? LIMIT 1`, permitID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
