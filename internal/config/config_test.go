package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := s.DatabasePath(); got != "recordvault.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := s.BackupDir(); got != "backups" {
		t.Errorf("BackupDir = %q", got)
	}
	if got := s.LogDir(); got != "logs" {
		t.Errorf("LogDir = %q", got)
	}
	if s.AutoBackupEnabled() {
		t.Error("AutoBackupEnabled default = true")
	}
	if got := s.BackupSchedule(); got != "" {
		t.Errorf("BackupSchedule = %q", got)
	}
	if got := s.RetentionMaxCount(); got != 10 {
		t.Errorf("RetentionMaxCount = %d", got)
	}
	if got := s.RetentionMaxAgeDays(); got != 0 {
		t.Errorf("RetentionMaxAgeDays = %d", got)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recordvault.yaml")
	contents := `
database:
  path: /data/records.db
backup:
  dir: /data/backups
  auto_enabled: true
  schedule: "0 3 * * *"
  retention:
    max_count: 5
    max_age_days: 30
logs:
  dir: /var/log/recordvault
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := s.DatabasePath(); got != "/data/records.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := s.BackupDir(); got != "/data/backups" {
		t.Errorf("BackupDir = %q", got)
	}
	if !s.AutoBackupEnabled() {
		t.Error("AutoBackupEnabled = false")
	}
	if got := s.BackupSchedule(); got != "0 3 * * *" {
		t.Errorf("BackupSchedule = %q", got)
	}
	if got := s.RetentionMaxCount(); got != 5 {
		t.Errorf("RetentionMaxCount = %d", got)
	}
	if got := s.RetentionMaxAgeDays(); got != 30 {
		t.Errorf("RetentionMaxAgeDays = %d", got)
	}
	if got := s.LogDir(); got != "/var/log/recordvault" {
		t.Errorf("LogDir = %q", got)
	}
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load accepted a missing explicit config file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RECORDVAULT_DATABASE_PATH", "/env/records.db")
	t.Setenv("RECORDVAULT_BACKUP_AUTO_ENABLED", "true")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.DatabasePath(); got != "/env/records.db" {
		t.Errorf("DatabasePath = %q, want env override", got)
	}
	if !s.AutoBackupEnabled() {
		t.Error("AutoBackupEnabled not overridden by env")
	}
}

func TestSnapshot(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := s.Snapshot()
	db, ok := snap["database"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing database section: %v", snap)
	}
	if db["path"] != "recordvault.db" {
		t.Errorf("database.path = %v", db["path"])
	}
	backup, ok := snap["backup"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing backup section: %v", snap)
	}
	retention, ok := backup["retention"].(map[string]any)
	if !ok || retention["max_count"] != 10 {
		t.Errorf("backup.retention = %v", backup["retention"])
	}
}
