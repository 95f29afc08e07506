package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers that indicate the issuance lost a lock race
// rather than hitting a real fault.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDuplicateKey    = 1062
)

// CounterRepo issues per-year document numbers from the document_counters
// table. Exactly one row exists per period; last_issued is monotonically
// non-decreasing and every issuance increments it by exactly one inside a
// row-locked transaction, so concurrent callers across any number of
// process instances can never observe or return the same number.
type CounterRepo struct {
	db        *sql.DB
	txTimeout time.Duration // upper bound on one issuance transaction
}

// NewCounterRepo returns a CounterRepo bound to the given database.  A
// non-positive txTimeout falls back to five seconds.
func NewCounterRepo(db *sql.DB, txTimeout time.Duration) *CounterRepo {
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &CounterRepo{db: db, txTimeout: txTimeout}
}

// BeginBoundedTx opens a transaction whose lifetime is capped by the
// configured issuance timeout, so a stalled lock wait or commit surfaces
// as the retryable ErrCounterBusy instead of holding the counter row
// lock indefinitely.  Every statement inside the transaction must use
// the returned context; the caller must call cancel when done and still
// owns commit/rollback.
func (r *CounterRepo) BeginBoundedTx(ctx context.Context) (*sql.Tx, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, asCounterErr(fmt.Errorf("begin counter tx: %w", err))
	}
	return tx, ctx, cancel, nil
}

// IssueNext atomically increments and returns the counter for the given
// period, creating the row lazily on first issuance.  The whole operation
// runs in its own transaction bounded by the configured timeout.  Lock
// contention surfaces as ErrCounterBusy; any other failure aborts the
// transaction so a number is never silently skipped.
func (r *CounterRepo) IssueNext(ctx context.Context, period int) (uint32, error) {
	tx, ctx, cancel, err := r.BeginBoundedTx(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	next, err := r.IssueNextTx(ctx, tx, period)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, asCounterErr(err)
	}
	committed = true
	return next, nil
}

// IssueNextTx performs the atomic increment within an existing transaction.
// The caller owns commit/rollback; this is used when the issued number and
// its assignment to a permit must commit together.
func (r *CounterRepo) IssueNextTx(ctx context.Context, tx *sql.Tx, period int) (uint32, error) {
	var last uint32
	err := tx.QueryRowContext(ctx,
		`SELECT last_issued FROM document_counters WHERE period = ? FOR UPDATE`,
		period,
	).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First issuance for the period. A concurrent first issuance races
		// on the primary key; the loser gets a duplicate-key error, which
		// is reported as retryable.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_counters (period, last_issued) VALUES (?, 1)`,
			period,
		); err != nil {
			return 0, asCounterErr(err)
		}
		return 1, nil
	case err != nil:
		return 0, asCounterErr(err)
	}

	next := last + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE document_counters SET last_issued = ? WHERE period = ?`,
		next, period,
	); err != nil {
		return 0, asCounterErr(err)
	}
	return next, nil
}

// PreviewNext returns the number the next issuance would produce without
// reserving it.  Repeated previews return the same value until an actual
// issuance occurs.
func (r *CounterRepo) PreviewNext(ctx context.Context, period int) (uint32, error) {
	var last uint32
	err := r.db.QueryRowContext(ctx,
		`SELECT last_issued FROM document_counters WHERE period = ?`,
		period,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// ResetTx sets the counter for a period back to zero within the provided
// transaction.  Dangerous: subsequent issuances will reuse numbers, so the
// caller must audit the reset before invoking it.  The row is created when
// missing so a reset on an untouched period is a no-op rather than an error.
func (r *CounterRepo) ResetTx(ctx context.Context, tx *sql.Tx, period int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO document_counters (period, last_issued) VALUES (?, 0)
		 ON DUPLICATE KEY UPDATE last_issued = 0`,
		period,
	)
	return asCounterErr(err)
}

// asCounterErr maps lock-contention failures to the retryable
// ErrCounterBusy sentinel and passes everything else through.  A context
// deadline counts as contention: the transaction was aborted before any
// number was handed out.
func asCounterErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCounterBusy, err)
	}
	var my *mysql.MySQLError
	if errors.As(err, &my) {
		switch my.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrDuplicateKey:
			return fmt.Errorf("%w: %v", ErrCounterBusy, err)
		}
	}
	return err
}

// FormatDocumentNumber renders a counter value as the human-facing permit
// document number, e.g. 17 in 2026 becomes "0017/SIMLOK/2026".  Pure
// function, no side effects.
func FormatDocumentNumber(n uint32, period int) string {
	return fmt.Sprintf("%04d/SIMLOK/%d", n, period)
}
