package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fvaldez/recordvault/internal/store"
)

// AuditEntry is one row of the append-only audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	TableName string    `json:"table_name,omitempty"`
	RecordID  int64     `json:"record_id,omitempty"`
	OldValues string    `json:"old_values,omitempty"` // JSON
	NewValues string    `json:"new_values,omitempty"` // JSON
	Timestamp time.Time `json:"timestamp"`
}

// AuditRepository records and queries audit events.
type AuditRepository interface {
	LogAction(ctx context.Context, userID int64, action, tableName string, recordID int64, oldValues, newValues any) error
	Trail(ctx context.Context, limit int) ([]AuditEntry, error)
}

// Compile-time interface guard.
var _ AuditRepository = (*SQLiteAuditRepository)(nil)

// SQLiteAuditRepository implements AuditRepository over the store manager.
// Audit writes deliberately skip the auto-backup hook: they accompany a
// primary write that already triggered one.
type SQLiteAuditRepository struct {
	mgr *store.Manager
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(mgr *store.Manager) *SQLiteAuditRepository {
	return &SQLiteAuditRepository{mgr: mgr}
}

func (r *SQLiteAuditRepository) LogAction(ctx context.Context, userID int64, action, tableName string, recordID int64, oldValues, newValues any) error {
	oldJSON, err := marshalValues(oldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(newValues)
	if err != nil {
		return err
	}

	return r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO audit_logs (user_id, action, table_name, record_id, old_values, new_values)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, action, nullable(tableName), nullableID(recordID), oldJSON, newJSON,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry %q: %w", action, err)
		}
		return nil
	})
}

func (r *SQLiteAuditRepository) Trail(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var entries []AuditEntry
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, COALESCE(user_id, 0), action, COALESCE(table_name, ''),
			       COALESCE(record_id, 0), COALESCE(old_values, ''), COALESCE(new_values, ''),
			       timestamp
			FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("list audit trail: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e AuditEntry
			if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.TableName,
				&e.RecordID, &e.OldValues, &e.NewValues, &e.Timestamp); err != nil {
				return fmt.Errorf("scan audit row: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

func marshalValues(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return string(data), nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
