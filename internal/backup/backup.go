// Package backup creates, catalogs, and restores point-in-time backups of
// the embedded database. Archives are self-describing tar.gz files with a
// whole-file SHA-256 checksum; restores are gated on that checksum and
// always keep a rollback path.
package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fvaldez/recordvault/internal/store"
)

// Kind classifies why a backup was taken.
type Kind string

const (
	KindManual    Kind = "manual"
	KindAutomatic Kind = "automatic"
	KindScheduled Kind = "scheduled"
	KindSafety    Kind = "safety"
)

// formatVersion is embedded in every archive's metadata.
const formatVersion = "1"

// recentLogAge bounds which log files are included in an archive.
const recentLogAge = 7 * 24 * time.Hour

const (
	namePrefix  = "recordvault-backup-"
	nameSuffix  = ".tar.gz"
	stampLayout = "20060102-150405"
)

// Record describes one backup artifact. The checksum is computed over the
// sealed archive bytes and is never mutated afterwards; a mismatch at
// restore time means corruption.
type Record struct {
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Kind        Kind      `json:"kind"`
	Checksum    string    `json:"checksum"`
	Description string    `json:"description"`
}

// Settings is the configuration surface the backup manager consumes.
// *config.Settings satisfies it.
type Settings interface {
	BackupDir() string
	LogDir() string
	AutoBackupEnabled() bool
	BackupSchedule() string
	RetentionMaxCount() int
	RetentionMaxAgeDays() int
	Snapshot() map[string]any
}

// ProgressFunc receives ordered (percentage, message) steps during backup
// and restore. It is feedback only; ignoring it changes nothing.
type ProgressFunc func(percent int, message string)

// Manager owns the backup directory for one database.
type Manager struct {
	store    *store.Manager
	settings Settings
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	protected map[string]struct{} // archives exempt from retention
}

// NewManager creates a backup Manager on top of the store manager and the
// settings collaborator.
func NewManager(st *store.Manager, settings Settings, logger *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
		protected: make(map[string]struct{}),
	}
}

// archiveMetadata is the top-level backup_metadata.json record.
type archiveMetadata struct {
	Created       time.Time `json:"created"`
	Kind          Kind      `json:"kind"`
	Description   string    `json:"description"`
	FormatVersion string    `json:"format_version"`
	Sections      []string  `json:"sections"`
}

// configSnapshot is the config/settings.yaml entry.
type configSnapshot struct {
	BackupInfo struct {
		Created       time.Time `yaml:"created"`
		Kind          Kind      `yaml:"kind"`
		Description   string    `yaml:"description"`
		FormatVersion string    `yaml:"format_version"`
	} `yaml:"backup_info"`
	Settings map[string]any `yaml:"settings"`
}

// Create builds a timestamp-named archive of the database, the current
// settings, and recent logs, then seals it and computes its checksum.
// The database copy runs under the store's connection lease so it cannot
// race a writer. Cancellation is checked between steps; a cancelled or
// failed backup leaves no partial archive behind.
func (m *Manager) Create(ctx context.Context, kind Kind, description string, progress ProgressFunc) (*Record, error) {
	report := func(pct int, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	report(10, "preparing backup")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := m.settings.BackupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %q: %w", dir, err)
	}

	created := m.now()
	filename := formatName(created, kind)
	path := filepath.Join(dir, filename)

	w, err := newArchiveWriter(path)
	if err != nil {
		return nil, err
	}
	sealed := false
	defer func() {
		if !sealed {
			w.Abort()
		}
	}()

	report(25, "copying database")
	dbPath := m.store.Path()
	err = m.store.WithConnection(ctx, func(db *sql.DB) error {
		// Flush pending WAL frames so the file copy is complete.
		if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("WAL checkpoint: %w", err)
		}
		return w.addFile(databasePrefix+filepath.Base(dbPath), dbPath)
	})
	if err != nil {
		return nil, fmt.Errorf("copy database into archive: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(50, "copying configuration")
	var snap configSnapshot
	snap.BackupInfo.Created = created
	snap.BackupInfo.Kind = kind
	snap.BackupInfo.Description = description
	snap.BackupInfo.FormatVersion = formatVersion
	snap.Settings = m.settings.Snapshot()

	snapYAML, err := yaml.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("marshal settings snapshot: %w", err)
	}
	if err := w.addBytes(configEntry, snapYAML, created); err != nil {
		return nil, fmt.Errorf("add settings to archive: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(75, "copying logs")
	m.addRecentLogs(w, created)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(90, "finalizing backup")
	meta := archiveMetadata{
		Created:       created,
		Kind:          kind,
		Description:   description,
		FormatVersion: formatVersion,
		Sections:      []string{"database", "config", "logs"},
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backup metadata: %w", err)
	}
	if err := w.addBytes(metadataEntry, metaJSON, created); err != nil {
		return nil, fmt.Errorf("add metadata to archive: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("seal archive: %w", err)
	}
	sealed = true

	// An archive Create cannot describe is discarded; every error return
	// leaves the backup directory without a new file.
	sum, err := fileChecksum(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("stat archive %q: %w", path, err)
	}

	rec := &Record{
		Filename:    filename,
		Path:        path,
		CreatedAt:   created,
		SizeBytes:   info.Size(),
		Kind:        kind,
		Checksum:    sum,
		Description: description,
	}

	report(100, "backup complete")
	m.logger.Info("backup created",
		zap.String("file", filename),
		zap.String("kind", string(kind)),
		zap.Int64("size_bytes", rec.SizeBytes),
	)

	if err := m.EnforceRetention(); err != nil {
		m.logger.Warn("retention cleanup failed", zap.Error(err))
	}
	return rec, nil
}

// AutoBackup takes a lightweight automatic backup before a mutating
// operation when enabled. Failures are logged and never propagate; an
// automatic backup is protection, not a prerequisite for the write.
func (m *Manager) AutoBackup(ctx context.Context) {
	if !m.settings.AutoBackupEnabled() {
		return
	}
	if _, err := m.Create(ctx, KindAutomatic, "before write", nil); err != nil {
		m.logger.Warn("automatic backup failed", zap.Error(err))
	}
}

// addRecentLogs includes log files modified within recentLogAge.
// Best-effort: unreadable files are skipped with a warning.
func (m *Manager) addRecentLogs(w *archiveWriter, now time.Time) {
	dir := m.settings.LogDir()
	if dir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return
	}
	cutoff := now.Add(-recentLogAge)
	for _, logPath := range matches {
		info, err := os.Stat(logPath)
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		if err := w.addFile(logsPrefix+filepath.Base(logPath), logPath); err != nil {
			m.logger.Warn("skipping log file", zap.String("file", logPath), zap.Error(err))
		}
	}
}

// List scans the backup directory and describes every archive, newest
// first. Metadata is read from the archive when present, otherwise derived
// from the filename. Checksums are recomputed on demand here; only Restore
// treats the checksum as a gate.
func (m *Manager) List() ([]Record, error) {
	dir := m.settings.BackupDir()
	matches, err := filepath.Glob(filepath.Join(dir, namePrefix+"*"+nameSuffix))
	if err != nil {
		return nil, fmt.Errorf("scan backup dir %q: %w", dir, err)
	}

	records := make([]Record, 0, len(matches))
	for _, path := range matches {
		rec, err := m.describe(path)
		if err != nil {
			m.logger.Warn("skipping unreadable backup", zap.String("file", path), zap.Error(err))
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// describe builds a Record for one archive on disk.
func (m *Manager) describe(path string) (*Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Filename:  filepath.Base(path),
		Path:      path,
		SizeBytes: info.Size(),
	}

	created, kind, err := parseName(rec.Filename)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = created
	rec.Kind = kind

	// Embedded metadata wins over the filename when readable.
	if data, err := readArchiveEntry(path, metadataEntry); err == nil {
		var meta archiveMetadata
		if err := json.Unmarshal(data, &meta); err == nil {
			rec.CreatedAt = meta.Created
			rec.Kind = meta.Kind
			rec.Description = meta.Description
		}
	}

	sum, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}
	rec.Checksum = sum
	return rec, nil
}

// Delete removes one backup archive.
func (m *Manager) Delete(rec *Record) error {
	if err := os.Remove(rec.Path); err != nil {
		return fmt.Errorf("delete backup %q: %w", rec.Filename, err)
	}
	m.logger.Info("backup deleted", zap.String("file", rec.Filename))
	return nil
}

// Stats summarizes the current backup set.
type Stats struct {
	Total          int
	TotalSizeBytes int64
	ByKind         map[Kind]int
	Newest         *Record
	Oldest         *Record
}

// GetStatistics aggregates counts, sizes, and the newest/oldest records
// over the listed backup set.
func (m *Manager) GetStatistics() (*Stats, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByKind: make(map[Kind]int)}
	for i := range records {
		rec := &records[i]
		stats.Total++
		stats.TotalSizeBytes += rec.SizeBytes
		stats.ByKind[rec.Kind]++
		if stats.Newest == nil || rec.CreatedAt.After(stats.Newest.CreatedAt) {
			stats.Newest = rec
		}
		if stats.Oldest == nil || rec.CreatedAt.Before(stats.Oldest.CreatedAt) {
			stats.Oldest = rec
		}
	}
	return stats, nil
}

// EnforceRetention deletes backups beyond the configured maximum count
// (oldest first) and older than the configured age, whichever policies are
// active. Archives protecting an in-flight restore are exempt.
func (m *Manager) EnforceRetention() error {
	records, err := m.List() // newest first
	if err != nil {
		return err
	}

	doomed := make(map[string]Record)
	if maxCount := m.settings.RetentionMaxCount(); maxCount > 0 && len(records) > maxCount {
		for _, rec := range records[maxCount:] {
			doomed[rec.Path] = rec
		}
	}
	if maxAge := m.settings.RetentionMaxAgeDays(); maxAge > 0 {
		cutoff := m.now().AddDate(0, 0, -maxAge)
		for _, rec := range records {
			if rec.CreatedAt.Before(cutoff) {
				doomed[rec.Path] = rec
			}
		}
	}

	m.mu.Lock()
	for path := range m.protected {
		delete(doomed, path)
	}
	m.mu.Unlock()

	for _, rec := range doomed {
		if err := os.Remove(rec.Path); err != nil {
			m.logger.Warn("could not delete expired backup",
				zap.String("file", rec.Filename), zap.Error(err))
			continue
		}
		m.logger.Info("expired backup deleted", zap.String("file", rec.Filename))
	}
	return nil
}

func (m *Manager) protect(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protected[path] = struct{}{}
}

func (m *Manager) unprotect(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.protected, path)
}

// formatName builds the archive filename: a sortable timestamp plus the
// kind suffix, e.g. recordvault-backup-20250101-120000-manual.tar.gz.
func formatName(t time.Time, kind Kind) string {
	return fmt.Sprintf("%s%s-%s%s", namePrefix, t.Format(stampLayout), kind, nameSuffix)
}

// parseName recovers the creation time and kind from an archive filename.
// The kind suffix is optional; a bare timestamp parses as KindManual.
func parseName(name string) (time.Time, Kind, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	if trimmed == name {
		return time.Time{}, "", fmt.Errorf("unrecognized backup filename %q", name)
	}

	stamp := trimmed
	kind := KindManual
	if len(trimmed) > len(stampLayout) && trimmed[len(stampLayout)] == '-' {
		stamp = trimmed[:len(stampLayout)]
		kind = Kind(trimmed[len(stampLayout)+1:])
	}

	created, err := time.ParseInLocation(stampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse backup timestamp in %q: %w", name, err)
	}
	return created, kind, nil
}

// fileChecksum computes the SHA-256 of the file's current bytes.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
