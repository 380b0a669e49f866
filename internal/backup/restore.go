package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Sentinel errors for the restore state machine.
var (
	// ErrCorruptBackup means the archive's bytes no longer match its
	// recorded checksum. No restore is attempted.
	ErrCorruptBackup = errors.New("backup archive is corrupt")

	// ErrSafetyBackupFailed means the pre-restore safety backup could not
	// be taken. The restore never proceeds without a rollback path.
	ErrSafetyBackupFailed = errors.New("safety backup failed")

	// ErrVerificationFailed means the restored database failed the
	// integrity check and the pre-restore copy was rolled back.
	ErrVerificationFailed = errors.New("restored database failed verification")
)

// RestoreOptions enumerates what a restore applies. Configuration is only
// ever extracted and returned, never applied in-process; applying it
// requires reinitialization, which belongs to the caller.
type RestoreOptions struct {
	RestoreDatabase bool
	RestoreConfig   bool
}

// RestoreResult carries restore outputs back to the caller.
type RestoreResult struct {
	// ConfigSnapshot is the raw settings entry from the archive, present
	// only when RestoreConfig was requested.
	ConfigSnapshot []byte
	// SafetyBackup is the backup of the pre-restore live database.
	SafetyBackup *Record
}

// Restore validates rec, takes a safety backup of the live database, swaps
// in the archived copy under the store's lock discipline, and verifies the
// result. Any failure before the swap leaves the live file untouched; any
// failure at or after the swap is resolved by rolling back to the
// pre-swap copy.
func (m *Manager) Restore(ctx context.Context, rec *Record, opts RestoreOptions, progress ProgressFunc) (*RestoreResult, error) {
	report := func(pct int, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	report(0, "validating backup")
	if _, err := os.Stat(rec.Path); err != nil {
		return nil, fmt.Errorf("backup archive missing: %w", err)
	}
	sum, err := fileChecksum(rec.Path)
	if err != nil {
		return nil, err
	}
	if sum != rec.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorruptBackup, rec.Filename)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The safety backup below runs retention, which must not reap the
	// archive we are restoring from.
	m.protect(rec.Path)
	defer m.unprotect(rec.Path)

	report(20, "creating safety backup")
	safety, err := m.Create(ctx, KindSafety, "before restore of "+rec.Filename, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSafetyBackupFailed, err)
	}
	// The safety backup must survive retention until this restore is over.
	m.protect(safety.Path)
	defer m.unprotect(safety.Path)

	result := &RestoreResult{SafetyBackup: safety}

	if opts.RestoreDatabase {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(50, "restoring database")
		if err := m.swapDatabase(ctx, rec); err != nil {
			return nil, err
		}
	}

	if opts.RestoreConfig {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(75, "extracting configuration")
		data, err := readArchiveEntry(rec.Path, configEntry)
		if err != nil {
			return nil, fmt.Errorf("read settings from archive: %w", err)
		}
		result.ConfigSnapshot = data
	}

	report(100, "restore complete")
	m.logger.Info("backup restored", zap.String("file", rec.Filename))
	return result, nil
}

// swapDatabase replaces the live database file with the archive's embedded
// copy under the exclusive file lock, keeping a local pre-swap copy beside
// the safety backup, and verifies the restored file before declaring
// success.
func (m *Manager) swapDatabase(ctx context.Context, rec *Record) error {
	_, data, err := readArchivePrefix(rec.Path, databasePrefix)
	if err != nil {
		return fmt.Errorf("read database from archive: %w", err)
	}

	dbPath := m.store.Path()
	aside := dbPath + ".pre-restore"

	return m.store.WithLock(func() error {
		if err := copyFile(dbPath, aside); err != nil {
			return fmt.Errorf("pre-swap copy: %w", err)
		}

		// Stale WAL sidecars from the old file must not be replayed into
		// the restored copy.
		removeSidecars(dbPath)

		if err := os.WriteFile(dbPath, data, 0o644); err != nil {
			m.rollback(aside, dbPath)
			return fmt.Errorf("write restored database: %w", err)
		}

		if err := verifyIntegrity(ctx, dbPath); err != nil {
			m.rollback(aside, dbPath)
			return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return nil
	})
}

// rollback copies the pre-swap file back into place. The live file is
// never left in a failed-verification state.
func (m *Manager) rollback(aside, dbPath string) {
	removeSidecars(dbPath)
	if err := copyFile(aside, dbPath); err != nil {
		m.logger.Error("rollback to pre-restore copy failed",
			zap.String("aside", aside), zap.Error(err))
		return
	}
	m.logger.Warn("restore rolled back to pre-restore copy")
}

func removeSidecars(dbPath string) {
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}

// verifyIntegrity runs SQLite's built-in structural check on the file.
func verifyIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored database: %w", err)
	}
	defer db.Close()

	var res string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&res); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("integrity check: %s", res)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
