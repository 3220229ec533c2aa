package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/franz/track-index/internal/util"
)

const (
	currentSchemaVersion = 2
)

// Store represents the application's persistent state: the library index
// and the missing-item registry, both reached through one connection pool.
type Store struct {
	db    *sqlx.DB
	pool  *Pool
	retry *util.RetryConfig
	path  string
}

// Options holds options for opening a database
type Options struct {
	PoolSize      int           // Idle connections kept for reuse
	BusyTimeout   time.Duration // SQLite busy_timeout applied to each connection
	CacheSize     int           // SQLite cache_size in pages
	RetryAttempts int           // Attempts for lock-contended statements and transactions
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() *Options {
	return &Options{
		PoolSize:      10,
		BusyTimeout:   30 * time.Second,
		CacheSize:     50000,
		RetryAttempts: 3,
	}
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options.
// Any failure here is fatal for the caller: nothing works without the schema.
func OpenWithOptions(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	defaults := DefaultOptions()
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaults.PoolSize
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaults.BusyTimeout
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = defaults.CacheSize
	}

	if err := ensureWritableDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	// Every transaction takes the write lock up front (BEGIN IMMEDIATE)
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Reuse is handled by Pool; a connection closed by Pool must really close
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(0)

	store := &Store{
		db:    db,
		pool:  NewPool(db, opts.PoolSize, connectionPragmas(opts)),
		retry: util.LockRetryConfig(opts.RetryAttempts, IsLockedError),
		path:  path,
	}

	if err := store.migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	util.DebugLog("Opened database %s (pool size %d)", path, opts.PoolSize)
	return store, nil
}

// connectionPragmas returns the statements applied to every new connection
func connectionPragmas(opts *Options) []string {
	return []string{
		// NORMAL is safe with WAL mode
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = %d", opts.CacheSize),
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
	}
}

// ensureWritableDir creates dir if needed and proves a file can be written there
func ensureWritableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".tix-write-*")
	if err != nil {
		return fmt.Errorf("%w: cannot write to %s: %v", util.ErrPermission, dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return nil
}

// Close releases pooled connections and closes the database
func (s *Store) Close() error {
	return s.pool.Close()
}

// DB returns the underlying database handle for custom queries
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Pool returns the connection pool
func (s *Store) Pool() *Pool {
	return s.pool
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity(ctx context.Context) error {
	return s.WithConn(ctx, func(q DBTX) error {
		var result string
		if err := sqlx.GetContext(ctx, q, &result, "PRAGMA integrity_check"); err != nil {
			return fmt.Errorf("integrity check query failed: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed: %s", result)
		}
		return nil
	})
}

// migrate applies database migrations
func (s *Store) migrate(ctx context.Context) error {
	return s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		version, err := getSchemaVersion(ctx, tx)
		if err != nil {
			return err
		}

		if version >= currentSchemaVersion {
			// Already at current version
			return nil
		}

		// Apply schema v1
		if version < 1 {
			if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
				return fmt.Errorf("failed to apply schema v1: %w", err)
			}
			if err := setSchemaVersion(ctx, tx, 1); err != nil {
				return fmt.Errorf("failed to set schema version: %w", err)
			}
		}

		// Apply schema v2 - download tracking columns
		if version < 2 {
			if _, err := tx.ExecContext(ctx, schemaV2); err != nil {
				return fmt.Errorf("failed to apply schema v2: %w", err)
			}
			if err := setSchemaVersion(ctx, tx, 2); err != nil {
				return fmt.Errorf("failed to set schema version: %w", err)
			}
		}

		util.DebugLog("Schema migrated from v%d to v%d", version, currentSchemaVersion)
		return nil
	})
}

// SchemaVersion returns the applied schema version
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.WithConn(ctx, func(q DBTX) error {
		var err error
		version, err = getSchemaVersion(ctx, q)
		return err
	})
	return version, err
}

// getSchemaVersion returns the current schema version
func getSchemaVersion(ctx context.Context, q DBTX) (int, error) {
	// Check if schema_version table exists
	var exists int
	err := sqlx.GetContext(ctx, q, &exists, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		// No schema yet
		return 0, nil
	}

	var version int
	err = sqlx.GetContext(ctx, q, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func setSchemaVersion(ctx context.Context, tx *sqlx.Tx, version int) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
