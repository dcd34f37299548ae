package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for store operations.
var (
	// ErrContention is returned when a write could not acquire the database
	// lock within the configured retry budget.
	ErrContention = errors.New("write contention: retry budget exhausted")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Config holds configuration for the SQLite store.
type Config struct {
	// Path is the database file path. The parent directory is created if
	// it does not exist.
	Path string

	// BusyRetries is the number of times a contended write is retried
	// before giving up with ErrContention.
	BusyRetries int

	// RetryBackoff is the initial backoff between retries. The backoff
	// doubles on every attempt.
	RetryBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BusyRetries == 0 {
		c.BusyRetries = 5
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 25 * time.Millisecond
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("store path cannot be empty")
	}
	if c.BusyRetries < 0 {
		return errors.New("busy retries cannot be negative")
	}
	return nil
}

// DB wraps the shared SQLite handle and the write lock.
type DB struct {
	sql    *sql.DB
	config Config
	logger *zap.Logger

	// writeMu serializes in-process writers. Cross-process exclusion is
	// provided by BEGIN IMMEDIATE.
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database at cfg.Path and applies the schema.
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path := filepath.Clean(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// _txlock=immediate makes every explicit transaction take the write
	// lock up front instead of on first write, so contention surfaces at
	// BEGIN where it can be retried.
	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets readers proceed while a writer holds the lock.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Debug("store opened", zap.String("path", path))

	return &DB{
		sql:    db,
		config: cfg,
		logger: logger,
	}, nil
}

// migrate creates the four relations if they do not exist.
func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			task       TEXT    NOT NULL,
			result     TEXT    NOT NULL,
			reflection TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at)`,
		`CREATE TABLE IF NOT EXISTS abstractions (
			cluster_id TEXT    NOT NULL,
			label      TEXT    NOT NULL,
			members    TEXT    NOT NULL,
			formed_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_weights (
			strategy   TEXT PRIMARY KEY,
			uses       INTEGER NOT NULL DEFAULT 0,
			successes  INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS modifications (
			target      TEXT PRIMARY KEY,
			backup      TEXT NOT NULL,
			new_content TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			applied_at  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Write runs fn inside an exclusive write transaction.
//
// The transaction is opened with BEGIN IMMEDIATE so the write lock is taken
// up front; a concurrent writer either waits or the attempt fails with a
// busy error and is retried with exponential backoff. After BusyRetries
// failed attempts the call returns ErrContention wrapping the last error.
func (d *DB) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	d.mu.RUnlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	backoff := d.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= d.config.BusyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := d.writeOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		d.logger.Debug("write contention, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)
	}
	return fmt.Errorf("%w: %v", ErrContention, lastErr)
}

func (d *DB) writeOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// Reader returns the underlying handle for read-only queries. Callers must
// not issue writes through it.
func (d *DB) Reader() *sql.DB {
	return d.sql
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.sql.PingContext(ctx)
}

// Close closes the database handle. Close is idempotent.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sql.Close()
}

// isBusy reports whether err is a transient SQLite lock error.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
