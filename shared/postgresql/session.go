package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Conn is one dedicated connection carrying at most one open transaction.
type Conn interface {
	// Query runs query inside the open transaction, beginning one if needed,
	// and scans the result into dest: every row when many is set, else the first.
	Query(ctx context.Context, dest any, many bool, query string, args ...any) error
	Commit() error
	Rollback() error
	Close() error
}

// Dialer opens a new Conn.
type Dialer func(ctx context.Context) (Conn, error)

// RetryPolicy bounds how many times a statement is attempted and how long to wait in between.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy returns 10 attempts spaced 2 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		Backoff:     2 * time.Second,
	}
}

// Session is a retrying store client bound to a single connection at a time.
// A failed statement discards the connection; the next attempt dials a fresh one.
type Session struct {
	mu      sync.Mutex
	dial    Dialer
	conn    Conn
	policy  RetryPolicy
	logger  *slog.Logger
	onRetry func()
}

// NewSession creates a session that opens connections with dial.
func NewSession(dial Dialer, policy RetryPolicy, logger *slog.Logger) *Session {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Session{
		dial:   dial,
		policy: policy,
		logger: logger,
	}
}

// NewSessionFromDB creates a session whose connections come from db's pool.
func NewSessionFromDB(db *sqlx.DB, policy RetryPolicy, logger *slog.Logger) *Session {
	return NewSession(poolDialer(db), policy, logger)
}

// OnRetry registers fn to be called after every failed attempt.
func (s *Session) OnRetry(fn func()) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = fn
	return s
}

// ExecuteWithRetry runs query and scans the result into dest.
//
// It returns true on success. It returns false without retrying when a
// single-row statement matched nothing, and false after logging once every
// attempt has failed or ctx is done.
func (s *Session) ExecuteWithRetry(ctx context.Context, dest any, many bool, query string, args ...any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		err := s.execute(ctx, dest, many, query, args...)
		if err == nil {
			return true
		}
		if errors.Is(err, sql.ErrNoRows) {
			return false
		}

		lastErr = err
		s.discard()
		if s.onRetry != nil {
			s.onRetry()
		}

		if attempt == s.policy.MaxAttempts || ctx.Err() != nil {
			break
		}

		s.logger.Warn("Store statement failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.policy.MaxAttempts),
			slog.Duration("backoff", s.policy.Backoff),
			slog.Any("error", err),
		)

		if !sleep(ctx, s.policy.Backoff) {
			break
		}
	}

	s.logger.Error("Store statement failed",
		slog.Int("max_attempts", s.policy.MaxAttempts),
		slog.String("query", query),
		slog.Any("error", lastErr),
	)
	return false
}

// Commit commits the open transaction, if any.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	if err := s.conn.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction",
			slog.Any("error", err),
		)
		s.discard()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	if err := s.conn.Rollback(); err != nil {
		s.logger.Warn("Failed to roll back transaction",
			slog.Any("error", err),
		)
		s.discard()
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Close releases the current connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) execute(ctx context.Context, dest any, many bool, query string, args ...any) error {
	if s.conn == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			return fmt.Errorf("failed to open connection: %w", err)
		}
		s.conn = conn
	}
	return s.conn.Query(ctx, dest, many, query, args...)
}

func (s *Session) discard() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("Failed to close discarded connection",
			slog.Any("error", err),
		)
	}
	s.conn = nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func poolDialer(db *sqlx.DB) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := db.Connx(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return &pooledConn{conn: conn}, nil
	}
}

// pooledConn pins one pool connection. Once a statement fails it is marked
// broken and removed from the pool on Close instead of being reused.
type pooledConn struct {
	conn   *sqlx.Conn
	tx     *sqlx.Tx
	broken bool
}

func (c *pooledConn) Query(ctx context.Context, dest any, many bool, query string, args ...any) error {
	if c.tx == nil {
		tx, err := c.conn.BeginTxx(ctx, nil)
		if err != nil {
			c.broken = true
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		c.tx = tx
	}

	var err error
	if many {
		err = c.tx.SelectContext(ctx, dest, query, args...)
	} else {
		err = c.tx.GetContext(ctx, dest, query, args...)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.broken = true
	}
	return err
}

func (c *pooledConn) Commit() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		c.broken = true
	}
	return err
}

func (c *pooledConn) Rollback() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		c.broken = true
	}
	return err
}

func (c *pooledConn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	if c.broken {
		// Returning ErrBadConn from Raw makes database/sql drop the connection.
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
		return nil
	}
	return c.conn.Close()
}
