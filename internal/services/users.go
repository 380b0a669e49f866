package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fvaldez/recordvault/internal/store"
)

// User is an application account. Records reference their creator.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"` // admin, editor, viewer
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository provides access to user accounts.
type UserRepository interface {
	Create(ctx context.Context, username, passwordHash, role, fullName string) (int64, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Deactivate(ctx context.Context, id int64) error
}

// Compile-time interface guard.
var _ UserRepository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepository implements UserRepository over the store manager.
type SQLiteUserRepository struct {
	mgr     *store.Manager
	backups AutoBackuper
}

// NewUserRepository creates a user repository. backups may be nil.
func NewUserRepository(mgr *store.Manager, backups AutoBackuper) *SQLiteUserRepository {
	return &SQLiteUserRepository{mgr: mgr, backups: backups}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, username, passwordHash, role, fullName string) (int64, error) {
	if r.backups != nil {
		r.backups.AutoBackup(ctx)
	}

	var id int64
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO users (username, password_hash, role, full_name)
			VALUES (?, ?, ?, ?)`,
			username, passwordHash, role, nullable(fullName),
		)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert user %q: %w", username, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		var fullName sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT id, username, role, full_name, is_active, created_at
			FROM users WHERE username = ? AND is_active = 1`, username,
		).Scan(&u.ID, &u.Username, &u.Role, &fullName, &u.IsActive, &u.CreatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("get user %q: %w", username, err)
		}
		u.FullName = fullName.String
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Deactivate soft-deletes a user; records keep their creator reference.
func (r *SQLiteUserRepository) Deactivate(ctx context.Context, id int64) error {
	if r.backups != nil {
		r.backups.AutoBackup(ctx)
	}

	return r.mgr.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE users SET is_active = 0 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deactivate user %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
