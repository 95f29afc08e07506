package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/asmorodws/simlok2-sub012/internal/model"
)

// PermitRepo provides data access to the permits table.  The trust
// subsystem treats permits as an external collaborator: it reads them for
// existence and state checks and writes only the approval fields
// (document number, approver, timestamp).  Submission and review CRUD
// live elsewhere.
type PermitRepo struct {
	db *sql.DB
}

// NewPermitRepo returns a new PermitRepo bound to the given database.
func NewPermitRepo(db *sql.DB) *PermitRepo { return &PermitRepo{db: db} }

const permitColumns = `id, vendor_user_id, vendor_name, work_description, status,
	document_number, approved_by, approved_at, created_at, updated_at`

func scanPermit(row *sql.Row) (*model.Permit, error) {
	var p model.Permit
	var docNo sql.NullString
	var approvedBy sql.NullInt64
	var approvedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.VendorUserID, &p.VendorName, &p.WorkDescription, &p.Status,
		&docNo, &approvedBy, &approvedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if docNo.Valid {
		v := docNo.String
		p.DocumentNumber = &v
	}
	if approvedBy.Valid {
		v := uint64(approvedBy.Int64)
		p.ApprovedBy = &v
	}
	if approvedAt.Valid {
		v := approvedAt.Time.UTC()
		p.ApprovedAt = &v
	}
	return &p, nil
}

// GetByID returns a single permit.  When no permit with the specified ID
// exists, ErrPermitNotFound is returned.
func (r *PermitRepo) GetByID(ctx context.Context, id uint64) (*model.Permit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE id = ?`, id)
	p, err := scanPermit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPermitNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AssignDocumentNumberTx marks a permit APPROVED and records its document
// number, approver and approval time within the provided transaction.  The
// guard on the current status means approving a non-PENDING permit returns
// ErrConflict instead of overwriting an already-issued number; a missing
// permit returns ErrPermitNotFound.
func (r *PermitRepo) AssignDocumentNumberTx(ctx context.Context, tx *sql.Tx, id uint64, number string, approvedBy uint64, approvedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE permits
		 SET status = ?, document_number = ?, approved_by = ?, approved_at = ?
		 WHERE id = ? AND status = ?`,
		model.PermitStatusApproved, number, approvedBy,
		approvedAt.UTC().Format("2006-01-02 15:04:05"),
		id, model.PermitStatusPending,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing permit from one in the wrong state.
		exists, err := existsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrPermitNotFound
		}
		return ErrConflict
	}
	return nil
}

func existsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM permits WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
