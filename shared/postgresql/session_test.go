package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnectionReset = errors.New("connection reset by peer")

// flakyStore counts dials and fails the first failures statements.
type flakyStore struct {
	failures   int
	dials      int
	statements int
	closed     int
	commits    int
	rollbacks  int
	dialErr    error
	queryErr   error
}

func (f *flakyStore) dial(ctx context.Context) (Conn, error) {
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeConn{store: f}, nil
}

type fakeConn struct {
	store *flakyStore
}

func (c *fakeConn) Query(ctx context.Context, dest any, many bool, query string, args ...any) error {
	c.store.statements++
	if c.store.queryErr != nil {
		return c.store.queryErr
	}
	if c.store.statements <= c.store.failures {
		return errConnectionReset
	}
	if n, ok := dest.(*int); ok {
		*n = 1
	}
	return nil
}

func (c *fakeConn) Commit() error   { c.store.commits++; return nil }
func (c *fakeConn) Rollback() error { c.store.rollbacks++; return nil }
func (c *fakeConn) Close() error    { c.store.closed++; return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Backoff: time.Millisecond}
}

func TestSession_ExecuteWithRetry(t *testing.T) {
	tests := []struct {
		name           string
		failures       int
		want           bool
		wantStatements int
		wantDials      int
	}{
		{"succeeds first time", 0, true, 1, 1},
		{"recovers after three failures", 3, true, 4, 4},
		{"fails on the last allowed attempt", 9, true, 10, 10},
		{"gives up after every attempt fails", 100, false, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyStore{failures: tt.failures}
			retries := 0
			session := NewSession(store.dial, fastPolicy(), testLogger()).OnRetry(func() { retries++ })

			var dest int
			ok := session.ExecuteWithRetry(context.Background(), &dest, false, "SELECT 1")

			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantStatements, store.statements)
			assert.Equal(t, tt.wantDials, store.dials)
			// every failure discards its connection
			assert.Equal(t, min(tt.failures, 10), store.closed)
			assert.Equal(t, min(tt.failures, 10), retries)
			if tt.want {
				assert.Equal(t, 1, dest)
			}
		})
	}
}

func TestSession_ReconnectsAfterFailures(t *testing.T) {
	store := &flakyStore{failures: 3}
	session := NewSession(store.dial, fastPolicy(), testLogger())

	ok := session.ExecuteWithRetry(context.Background(), new(int), false, "SELECT 1")

	require.True(t, ok)
	// one initial connection plus one reconnect per failure
	assert.Equal(t, 3, store.dials-1)
}

func TestSession_NoRowsIsNotRetried(t *testing.T) {
	store := &flakyStore{queryErr: sql.ErrNoRows}
	session := NewSession(store.dial, fastPolicy(), testLogger())

	ok := session.ExecuteWithRetry(context.Background(), new(int), false, "SELECT 1 WHERE false")

	assert.False(t, ok)
	assert.Equal(t, 1, store.statements)
	assert.Equal(t, 0, store.closed)
}

func TestSession_DialFailureCountsAsAttempt(t *testing.T) {
	store := &flakyStore{dialErr: errConnectionReset}
	session := NewSession(store.dial, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, testLogger())

	ok := session.ExecuteWithRetry(context.Background(), new(int), false, "SELECT 1")

	assert.False(t, ok)
	assert.Equal(t, 3, store.dials)
	assert.Equal(t, 0, store.statements)
}

func TestSession_StopsWhenContextDone(t *testing.T) {
	store := &flakyStore{failures: 100}
	session := NewSession(store.dial, RetryPolicy{MaxAttempts: 10, Backoff: time.Hour}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok := session.ExecuteWithRetry(ctx, new(int), false, "SELECT 1")

	assert.False(t, ok)
	assert.Equal(t, 1, store.statements)
}

func TestSession_CommitAndRollback(t *testing.T) {
	store := &flakyStore{}
	session := NewSession(store.dial, fastPolicy(), testLogger())
	ctx := context.Background()

	// nothing open yet
	require.NoError(t, session.Commit(ctx))
	assert.Equal(t, 0, store.commits)

	require.True(t, session.ExecuteWithRetry(ctx, new(int), false, "SELECT 1"))
	require.NoError(t, session.Commit(ctx))
	require.True(t, session.ExecuteWithRetry(ctx, new(int), false, "SELECT 1"))
	require.NoError(t, session.Rollback(ctx))

	assert.Equal(t, 1, store.commits)
	assert.Equal(t, 1, store.rollbacks)
	// the connection is reused across transactions
	assert.Equal(t, 1, store.dials)

	require.NoError(t, session.Close())
	assert.Equal(t, 1, store.closed)
}

func TestSession_PooledConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	session := NewSessionFromDB(sqlx.NewDb(db, "sqlmock"), fastPolicy(), testLogger())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM models").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	var ids []int64
	require.True(t, session.ExecuteWithRetry(ctx, &ids, true, "SELECT id FROM models"))
	require.NoError(t, session.Commit(ctx))
	assert.Equal(t, []int64{1, 2}, ids)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM models WHERE id").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	var id int64
	assert.False(t, session.ExecuteWithRetry(ctx, &id, false, "SELECT id FROM models WHERE id = $1", 9))
	require.NoError(t, session.Rollback(ctx))

	require.NoError(t, session.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "gwo", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gwo sslmode=disable", cfg.DSN())

	cfg.Schema = "staging"
	assert.Contains(t, cfg.DSN(), "search_path=staging")
}

func TestConfig_RetryPolicy(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), (&Config{}).RetryPolicy())

	policy := (&Config{RetryAttempts: 3, RetryBackoff: time.Second}).RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.Backoff)
}
