package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDocumentNumber(t *testing.T) {
	tests := []struct {
		n      uint32
		period int
		want   string
	}{
		{1, 2026, "0001/SIMLOK/2026"},
		{17, 2026, "0017/SIMLOK/2026"},
		{9999, 2025, "9999/SIMLOK/2025"},
		// Width grows past four digits rather than truncating.
		{12345, 2026, "12345/SIMLOK/2026"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDocumentNumber(tt.n, tt.period))
	}
}

func TestCounterErrMapping(t *testing.T) {
	assert.NoError(t, asCounterErr(nil))

	// Lock contention and a blown transaction deadline are retryable.
	assert.ErrorIs(t, asCounterErr(context.DeadlineExceeded), ErrCounterBusy)
	assert.ErrorIs(t, asCounterErr(&mysql.MySQLError{Number: 1205}), ErrCounterBusy)
	assert.ErrorIs(t, asCounterErr(&mysql.MySQLError{Number: 1213}), ErrCounterBusy)
	assert.ErrorIs(t, asCounterErr(&mysql.MySQLError{Number: 1062}), ErrCounterBusy)

	// Anything else passes through untouched.
	boom := errors.New("disk on fire")
	assert.ErrorIs(t, asCounterErr(boom), boom)
	assert.NotErrorIs(t, asCounterErr(boom), ErrCounterBusy)
}

// The tests below run CounterRepo against an in-memory stand-in for the
// document_counters table.  Its one job is to honor the same contract the
// repository leans on in MySQL: a SELECT ... FOR UPDATE takes the row
// lock and holds it until the transaction ends, so concurrent issuances
// serialize on the row exactly as InnoDB serializes them.

type seqStore struct {
	mu   sync.Mutex
	rows map[int]uint32
}

type seqDriver struct{}

var (
	seqStoresMu  sync.Mutex
	seqStores    = map[string]*seqStore{}
	registerOnce sync.Once
)

func openSeqDB(t *testing.T) *sql.DB {
	t.Helper()
	registerOnce.Do(func() { sql.Register("seqcounter", seqDriver{}) })
	name := t.Name()
	seqStoresMu.Lock()
	seqStores[name] = &seqStore{rows: map[int]uint32{}}
	seqStoresMu.Unlock()
	db, err := sql.Open("seqcounter", name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (seqDriver) Open(dsn string) (driver.Conn, error) {
	seqStoresMu.Lock()
	defer seqStoresMu.Unlock()
	store, ok := seqStores[dsn]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", dsn)
	}
	return &seqConn{store: store}, nil
}

// seqConn implements QueryerContext/ExecerContext so the repository's
// statements reach it without prepared-statement plumbing.  holdsLock
// mirrors the row lock owned by the transaction running on this conn.
type seqConn struct {
	store     *seqStore
	holdsLock bool
}

func (c *seqConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *seqConn) Close() error {
	c.release()
	return nil
}

func (c *seqConn) Begin() (driver.Tx, error) { return &seqTx{conn: c}, nil }

func (c *seqConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &seqTx{conn: c}, nil
}

func (c *seqConn) lock() {
	if !c.holdsLock {
		c.store.mu.Lock()
		c.holdsLock = true
	}
}

func (c *seqConn) release() {
	if c.holdsLock {
		c.holdsLock = false
		c.store.mu.Unlock()
	}
}

type seqTx struct{ conn *seqConn }

func (t *seqTx) Commit() error   { t.conn.release(); return nil }
func (t *seqTx) Rollback() error { t.conn.release(); return nil }

func (c *seqConn) QueryContext(_ context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(q, "SELECT last_issued") {
		return nil, fmt.Errorf("unexpected query %q", q)
	}
	period := int(args[0].Value.(int64))

	if strings.Contains(q, "FOR UPDATE") {
		// Locking read: take the row lock and keep it until the
		// transaction commits or rolls back, even when no row exists
		// yet (a first issuance locks the gap).
		c.lock()
		v, ok := c.store.rows[period]
		if !ok {
			return &seqRows{}, nil
		}
		return &seqRows{vals: []driver.Value{int64(v)}}, nil
	}

	// Consistent read outside a transaction (PreviewNext).
	if c.holdsLock {
		v, ok := c.store.rows[period]
		if !ok {
			return &seqRows{}, nil
		}
		return &seqRows{vals: []driver.Value{int64(v)}}, nil
	}
	c.store.mu.Lock()
	v, ok := c.store.rows[period]
	c.store.mu.Unlock()
	if !ok {
		return &seqRows{}, nil
	}
	return &seqRows{vals: []driver.Value{int64(v)}}, nil
}

func (c *seqConn) ExecContext(_ context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	switch {
	case strings.Contains(q, "ON DUPLICATE KEY UPDATE"):
		period := int(args[0].Value.(int64))
		c.lock()
		c.store.rows[period] = 0
	case strings.Contains(q, "INSERT INTO document_counters"):
		period := int(args[0].Value.(int64))
		c.lock()
		c.store.rows[period] = 1
	case strings.Contains(q, "UPDATE document_counters"):
		next := uint32(args[0].Value.(int64))
		period := int(args[1].Value.(int64))
		c.lock()
		c.store.rows[period] = next
	default:
		return nil, fmt.Errorf("unexpected exec %q", q)
	}
	return driver.RowsAffected(1), nil
}

type seqRows struct {
	vals []driver.Value
}

func (r *seqRows) Columns() []string { return []string{"last_issued"} }
func (r *seqRows) Close() error      { return nil }

func (r *seqRows) Next(dest []driver.Value) error {
	if r.vals == nil {
		return io.EOF
	}
	copy(dest, r.vals)
	r.vals = nil
	return nil
}

func TestIssueNextLazyCreateAndIncrement(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), time.Second)
	ctx := context.Background()

	for want := uint32(1); want <= 3; want++ {
		got, err := repo.IssueNext(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIssueNextConcurrentUniqueness(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), 5*time.Second)

	const n = 32
	results := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.IssueNext(context.Background(), 2026)
			assert.NoError(t, err)
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool, n)
	for v := range results {
		assert.False(t, seen[v], "number %d issued twice", v)
		seen[v] = true
	}
	// Contiguous range: no duplicates, no gaps.
	for i := uint32(1); i <= n; i++ {
		assert.True(t, seen[i], "number %d skipped", i)
	}
}

func TestPreviewNextDoesNotReserve(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		next, err := repo.PreviewNext(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), next, "repeated previews must be stable")
	}

	_, err := repo.IssueNext(ctx, 2026)
	require.NoError(t, err)

	next, err := repo.PreviewNext(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), next)
}

func TestResetRestartsSequence(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), time.Second)
	ctx := context.Background()

	_, err := repo.IssueNext(ctx, 2026)
	require.NoError(t, err)
	_, err = repo.IssueNext(ctx, 2026)
	require.NoError(t, err)

	tx, txCtx, cancel, err := repo.BeginBoundedTx(ctx)
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, repo.ResetTx(txCtx, tx, 2026))
	require.NoError(t, tx.Commit())

	got, err := repo.IssueNext(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got, "a reset period reissues from the start")
}

func TestBeginBoundedTxAppliesDeadline(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), 2*time.Second)

	tx, txCtx, cancel, err := repo.BeginBoundedTx(context.Background())
	require.NoError(t, err)
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	// The issuance path must run on a deadline-bounded context; the
	// configured timeout, not the server's lock-wait default, caps the
	// transaction.
	deadline, ok := txCtx.Deadline()
	require.True(t, ok, "transaction context carries no deadline")
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}

func TestBeginBoundedTxTightensCallerDeadline(t *testing.T) {
	repo := NewCounterRepo(openSeqDB(t), time.Second)

	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()

	tx, txCtx, cancel, err := repo.BeginBoundedTx(parent)
	require.NoError(t, err)
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	deadline, ok := txCtx.Deadline()
	require.True(t, ok)
	assert.True(t, deadline.Before(time.Now().Add(time.Hour)),
		"a request-scoped context must not widen the transaction bound")
}
