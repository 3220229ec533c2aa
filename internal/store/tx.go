package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/franz/track-index/internal/util"
)

// DBTX is satisfied by pooled connections and transactions alike
type DBTX interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// IsLockedError reports whether err is SQLite write-lock contention
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// WithTransaction runs fn inside a write-locking transaction on a pooled
// connection. fn's error rolls the transaction back and is returned as is.
// Lock contention retries the whole unit with backoff, so fn must not keep
// state between calls.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return util.Retry(ctx, s.retry, func() error {
		return s.runTransaction(ctx, fn)
	}, "transaction")
}

func (s *Store) runTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithConn runs fn on a pooled connection outside an explicit transaction,
// retrying on lock contention.
func (s *Store) WithConn(ctx context.Context, fn func(q DBTX) error) error {
	return util.Retry(ctx, s.retry, func() error {
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer s.pool.Release(conn)
		return fn(conn)
	}, "query")
}

// ExecWithRetry executes a single statement, retrying on lock contention
func (s *Store) ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return util.RetryWithBackoff(ctx, s.retry, func() (sql.Result, error) {
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer s.pool.Release(conn)
		return conn.ExecContext(ctx, query, args...)
	}, "exec")
}
