// Package services provides repository interfaces and SQLite
// implementations for the record-keeping entities. Repositories reach the
// database only through the store manager's connection leases, and
// mutating operations run the configured auto-backup hook first.
package services

import (
	"context"
	"errors"
)

// ListOptions controls pagination for list queries.
type ListOptions struct {
	Limit  int // Max results per page (default 50, max 1000).
	Offset int // Number of results to skip.
}

// Sentinel errors returned by repositories.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AutoBackuper is the pre-write backup hook. The backup manager satisfies
// it; a nil hook disables automatic backups entirely.
type AutoBackuper interface {
	AutoBackup(ctx context.Context)
}

// normalizeListOptions applies defaults and caps to list options.
func normalizeListOptions(opts ListOptions) ListOptions {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
