//go:build windows

package store

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// flockExclusive takes a non-blocking exclusive LockFileEx lock on f.
// Returns errWouldBlock if another process holds the lock.
func flockExclusive(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return errWouldBlock
	}
	return err
}

// flockUnlock releases the LockFileEx lock on f.
func flockUnlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
