package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ErrLockUnavailable is returned when another process already holds the
// exclusive lock on the database file. Callers must not retry blindly;
// blocking here could hang an interactive caller indefinitely.
var ErrLockUnavailable = errors.New("database is in use by another instance")

// errWouldBlock is the platform-neutral signal that a non-blocking lock
// attempt found the file already locked.
var errWouldBlock = errors.New("lock would block")

// FileLock is an exclusive, non-blocking advisory lock on a sidecar file
// next to the database. It is the cross-process half of the single-writer
// guarantee; the in-process half lives in Manager.
type FileLock struct {
	path string
	file *os.File
	id   string
}

// NewFileLock returns a lock for the database at dbPath. The sidecar file
// is <dbPath>.lock.
func NewFileLock(dbPath string) *FileLock {
	return &FileLock{path: dbPath + ".lock"}
}

// Acquire takes the exclusive lock, creating the sidecar file if needed.
// A leftover sidecar from a crashed process is acquirable as soon as the
// OS-level lock it held is gone. Returns ErrLockUnavailable immediately
// when another process holds the lock.
func (l *FileLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %q: %w", l.path, err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return ErrLockUnavailable
		}
		return fmt.Errorf("lock %q: %w", l.path, err)
	}

	// Record who holds the lease. Purely diagnostic; the OS lock is the
	// source of truth.
	l.id = uuid.NewString()
	f.Truncate(0)
	f.WriteString(l.id + "\n")

	l.file = f
	return nil
}

// HolderID returns the held-by marker written into the sidecar file, or ""
// if the lock is not held.
func (l *FileLock) HolderID() string {
	if l.file == nil {
		return ""
	}
	return l.id
}

// Release unlocks and closes the sidecar file, then removes it best-effort.
// Safe to call on an unheld lock.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := flockUnlock(l.file)
	l.file.Close()
	l.file = nil
	l.id = ""

	// Removal is cosmetic: a stale sidecar without an OS lock does not
	// prevent the next acquisition.
	os.Remove(l.path)
	return err
}
