package testutil

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/fvaldez/recordvault/internal/store"
)

// NewManager creates a store.Manager on a fresh database file under a
// per-test temp directory. The file and its sidecars are cleaned up with
// the test.
func NewManager(t *testing.T) *store.Manager {
	t.Helper()
	return store.NewManager(filepath.Join(t.TempDir(), "recordvault.db"), zap.NewNop())
}

// NewManagerAt creates a store.Manager for an explicit database path.
func NewManagerAt(t *testing.T, path string) *store.Manager {
	t.Helper()
	return store.NewManager(path, zap.NewNop())
}
