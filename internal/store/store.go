// Package store owns the embedded SQLite database file: exclusive
// cross-process locking, connection configuration, and schema migrations.
// Every other package reaches the database only through Manager.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Manager serializes all access to one database file. A connection is
// leased for the duration of a WithConnection call: the sidecar file lock
// is taken first, the connection is configured, and both are torn down on
// every exit path.
type Manager struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex // In-process half of the single-writer guarantee.
}

// NewManager creates a Manager for the database at path. The file itself
// is created lazily on the first connection.
func NewManager(path string, logger *zap.Logger) *Manager {
	return &Manager{path: path, logger: logger}
}

// Path returns the database file path.
func (m *Manager) Path() string {
	return m.path
}

// WithConnection leases an exclusive connection to the database and runs
// fn with it. The sidecar lock and the connection are released on every
// exit path, including a panic inside fn. A second lease attempt while one
// is held fails fast with ErrLockUnavailable rather than blocking.
func (m *Manager) WithConnection(ctx context.Context, fn func(db *sql.DB) error) error {
	if !m.mu.TryLock() {
		return ErrLockUnavailable
	}
	defer m.mu.Unlock()

	lock := NewFileLock(m.path)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			m.logger.Warn("releasing database lock", zap.Error(err))
		}
	}()

	db, err := open(ctx, m.path)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

// WithLock holds the exclusive file lock without opening a connection.
// Restore uses this to swap the database file with the same lock
// discipline as a normal write, so a swap can never race a writer.
func (m *Manager) WithLock(fn func() error) error {
	if !m.mu.TryLock() {
		return ErrLockUnavailable
	}
	defer m.mu.Unlock()

	lock := NewFileLock(m.path)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			m.logger.Warn("releasing database lock", zap.Error(err))
		}
	}()

	return fn()
}

// Tx executes fn within a transaction on db. Committed if fn returns nil,
// rolled back otherwise.
func Tx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// open opens the database and applies the durability pragmas. SQLite
// performs best with a single write connection; WAL enables concurrent
// readers.
func open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	return db, nil
}
