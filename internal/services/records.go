package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fvaldez/recordvault/internal/store"
)

// Record is one tracked application record.
type Record struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Alias      string    `json:"alias,omitempty"`
	DocURL     string    `json:"doc_url,omitempty"`
	RecordDate string    `json:"record_date,omitempty"` // YYYY-MM-DD
	Location   string    `json:"location,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Joined from the users table on reads.
	CreatedByUsername string `json:"created_by_username,omitempty"`
}

// RecordRepository provides access to records.
type RecordRepository interface {
	Create(ctx context.Context, r *Record) (int64, error)
	Get(ctx context.Context, id int64) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, term string) ([]Record, error)
}

// Compile-time interface guard.
var _ RecordRepository = (*SQLiteRecordRepository)(nil)

// SQLiteRecordRepository implements RecordRepository over the store
// manager. backups may be nil to disable the pre-write backup hook.
type SQLiteRecordRepository struct {
	mgr     *store.Manager
	backups AutoBackuper
}

// NewRecordRepository creates a record repository.
func NewRecordRepository(mgr *store.Manager, backups AutoBackuper) *SQLiteRecordRepository {
	return &SQLiteRecordRepository{mgr: mgr, backups: backups}
}

func (r *SQLiteRecordRepository) autoBackup(ctx context.Context) {
	if r.backups != nil {
		r.backups.AutoBackup(ctx)
	}
}

func (r *SQLiteRecordRepository) Create(ctx context.Context, rec *Record) (int64, error) {
	r.autoBackup(ctx)

	var id int64
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO records (name, alias, doc_url, record_date, location, details, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.Name, nullable(rec.Alias), nullable(rec.DocURL), nullable(rec.RecordDate),
			nullable(rec.Location), nullable(rec.Details), rec.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("insert record %q: %w", rec.Name, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (r *SQLiteRecordRepository) Get(ctx context.Context, id int64) (*Record, error) {
	var rec Record
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, name, alias, doc_url, record_date, location, details,
			       created_by, created_at, updated_at, created_by_username
			FROM v_records_with_user WHERE id = ?`, id)
		if err := scanRecord(row, &rec); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("get record %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRecordRepository) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	opts = normalizeListOptions(opts)

	var records []Record
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, name, alias, doc_url, record_date, location, details,
			       created_by, created_at, updated_at, created_by_username
			FROM v_records_with_user
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var rec Record
			if err := scanRecord(rows, &rec); err != nil {
				return fmt.Errorf("scan record row: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

func (r *SQLiteRecordRepository) Update(ctx context.Context, rec *Record) error {
	r.autoBackup(ctx)

	return r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE records
			SET name = ?, alias = ?, doc_url = ?, record_date = ?, location = ?, details = ?
			WHERE id = ?`,
			rec.Name, nullable(rec.Alias), nullable(rec.DocURL), nullable(rec.RecordDate),
			nullable(rec.Location), nullable(rec.Details), rec.ID,
		)
		if err != nil {
			return fmt.Errorf("update record %d: %w", rec.ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *SQLiteRecordRepository) Delete(ctx context.Context, id int64) error {
	r.autoBackup(ctx)

	return r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete record %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Search matches the term against name, alias, and details, ranking name
// matches first.
func (r *SQLiteRecordRepository) Search(ctx context.Context, term string) ([]Record, error) {
	pattern := "%" + term + "%"

	var records []Record
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, name, alias, doc_url, record_date, location, details,
			       created_by, created_at, updated_at, created_by_username
			FROM v_records_with_user
			WHERE name LIKE ? OR alias LIKE ? OR details LIKE ?
			ORDER BY
				CASE
					WHEN name LIKE ? THEN 1
					WHEN alias LIKE ? THEN 2
					ELSE 3
				END,
				created_at DESC`,
			pattern, pattern, pattern, pattern, pattern)
		if err != nil {
			return fmt.Errorf("search records %q: %w", term, err)
		}
		defer rows.Close()

		for rows.Next() {
			var rec Record
			if err := scanRecord(rows, &rec); err != nil {
				return fmt.Errorf("scan record row: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, rec *Record) error {
	var alias, docURL, location, details sql.NullString
	var recordDate sql.NullTime
	err := s.Scan(&rec.ID, &rec.Name, &alias, &docURL, &recordDate, &location, &details,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &rec.CreatedByUsername)
	if err != nil {
		return err
	}
	rec.Alias = alias.String
	rec.DocURL = docURL.String
	if recordDate.Valid {
		rec.RecordDate = recordDate.Time.Format("2006-01-02")
	}
	rec.Location = location.String
	rec.Details = details.String
	return nil
}

// nullable maps "" to NULL so optional columns stay NULL instead of empty.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
