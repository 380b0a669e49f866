package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

//go:embed schema.sql
var baseSchema string

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Engine applies the base schema and the ordered migration units against
// the applied_migrations ledger. It is safe to run on every startup: the
// base schema is fully guarded with IF NOT EXISTS, applied units are
// skipped, and a unit that failed previously is retried.
type Engine struct {
	mgr    *Manager
	logger *zap.Logger
	schema string
	units  []Unit
}

// NewEngine creates an Engine with an explicit schema and unit list.
// Tests use this to inject synthetic migrations.
func NewEngine(mgr *Manager, logger *zap.Logger, schema string, units []Unit) *Engine {
	return &Engine{mgr: mgr, logger: logger, schema: schema, units: units}
}

// DefaultEngine creates an Engine with the embedded schema and migrations.
func DefaultEngine(mgr *Manager, logger *zap.Logger) (*Engine, error) {
	units, err := LoadUnits(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return NewEngine(mgr, logger, baseSchema, units), nil
}

// Run applies the base schema, then each pending migration unit in order.
// A unit that fails is logged and skipped; its ledger entry stays
// unwritten so the next startup retries it. Run only returns an error for
// conditions migrations cannot recover from (no connection, broken ledger).
func (e *Engine) Run(ctx context.Context) error {
	return e.mgr.WithConnection(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, e.schema); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
		if err := ensureLedger(ctx, db); err != nil {
			return err
		}

		for _, u := range e.units {
			applied, err := unitApplied(ctx, db, u.Name)
			if err != nil {
				return err
			}
			if applied {
				continue
			}

			if err := e.applyUnit(ctx, db, u); err != nil {
				e.logger.Warn("migration unit failed, will retry on next startup",
					zap.String("unit", u.Name),
					zap.Error(err),
				)
				continue
			}

			if err := recordUnit(ctx, db, u.Name); err != nil {
				return fmt.Errorf("record migration %q: %w", u.Name, err)
			}
			e.logger.Info("migration applied", zap.String("unit", u.Name))
		}
		return nil
	})
}

// applyUnit executes one unit. Column additions are applied one column at
// a time after checking the table's current structure, so a file that was
// partially migrated by an interrupted run converges instead of failing.
func (e *Engine) applyUnit(ctx context.Context, db *sql.DB, u Unit) error {
	switch u.Kind {
	case ColumnAddition:
		for _, c := range u.Columns {
			exists, err := columnExists(ctx, db, c.Table, c.Column)
			if err != nil {
				return err
			}
			if exists {
				e.logger.Debug("column already present",
					zap.String("table", c.Table),
					zap.String("column", c.Column),
				)
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Column, c.Definition)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				if isDuplicateColumn(err) {
					continue
				}
				return fmt.Errorf("add column %s.%s: %w", c.Table, c.Column, err)
			}
		}
		for _, stmt := range u.Extra {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", stmt, err)
			}
		}
		return nil

	default:
		return Tx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range u.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					if isDuplicateColumn(err) {
						// Structure already present from an interrupted
						// prior run; the unit counts as applied.
						return nil
					}
					return fmt.Errorf("exec %q: %w", stmt, err)
				}
			}
			return nil
		})
	}
}

// columnExists reports whether table already has the named column,
// using PRAGMA table_info introspection.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %q: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info row: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// isDuplicateColumn matches SQLite's "duplicate column name" error class.
// An existing column satisfies the migration regardless of its declared
// type; column compatibility is deliberately not verified.
func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func ensureLedger(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS applied_migrations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			filename   TEXT UNIQUE NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("create migrations ledger: %w", err)
	}
	return nil
}

func unitApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM applied_migrations WHERE filename = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check migration %q: %w", name, err)
	}
	return count > 0, nil
}

func recordUnit(ctx context.Context, db *sql.DB, name string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO applied_migrations (filename) VALUES (?)", name)
	return err
}

// AppliedMigrations returns the ledger contents in application order.
func (e *Engine) AppliedMigrations(ctx context.Context) ([]string, error) {
	var names []string
	err := e.mgr.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT filename FROM applied_migrations ORDER BY id")
		if err != nil {
			return fmt.Errorf("list applied migrations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan migration row: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}
