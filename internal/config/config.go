// Package config loads application settings through Viper into a typed
// Settings value. Other packages consume Settings through small accessor
// interfaces; they never touch Viper directly.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the resolved application configuration.
type Settings struct {
	dbPath     string
	backupDir  string
	logDir     string
	autoBackup bool
	schedule   string
	maxCount   int
	maxAgeDays int
}

// Load reads configuration from the given file (or recordvault.yaml in the
// working directory when path is empty), layered over defaults and
// RECORDVAULT_* environment variables. A missing default config file is
// not an error; an explicitly named file must exist.
func Load(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("database.path", "recordvault.db")
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.auto_enabled", false)
	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.retention.max_count", 10)
	v.SetDefault("backup.retention.max_age_days", 0)
	v.SetDefault("logs.dir", "logs")

	v.SetEnvPrefix("RECORDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("recordvault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Settings{
		dbPath:     v.GetString("database.path"),
		backupDir:  v.GetString("backup.dir"),
		logDir:     v.GetString("logs.dir"),
		autoBackup: v.GetBool("backup.auto_enabled"),
		schedule:   v.GetString("backup.schedule"),
		maxCount:   v.GetInt("backup.retention.max_count"),
		maxAgeDays: v.GetInt("backup.retention.max_age_days"),
	}, nil
}

// DatabasePath returns the embedded database file path.
func (s *Settings) DatabasePath() string { return s.dbPath }

// BackupDir returns the directory backup archives are written to.
func (s *Settings) BackupDir() string { return s.backupDir }

// LogDir returns the directory scanned for recent log files.
func (s *Settings) LogDir() string { return s.logDir }

// AutoBackupEnabled reports whether a lightweight backup is taken before
// mutating database operations.
func (s *Settings) AutoBackupEnabled() bool { return s.autoBackup }

// BackupSchedule returns the cron expression for scheduled backups, or ""
// when scheduling is disabled.
func (s *Settings) BackupSchedule() string { return s.schedule }

// RetentionMaxCount returns the maximum number of backups to keep.
// Zero disables the count-based policy.
func (s *Settings) RetentionMaxCount() int { return s.maxCount }

// RetentionMaxAgeDays returns the maximum backup age in days.
// Zero disables the age-based policy.
func (s *Settings) RetentionMaxAgeDays() int { return s.maxAgeDays }

// Snapshot returns the effective settings as a plain map, suitable for
// serializing into a backup archive.
func (s *Settings) Snapshot() map[string]any {
	return map[string]any{
		"database": map[string]any{
			"path": s.dbPath,
		},
		"backup": map[string]any{
			"dir":          s.backupDir,
			"auto_enabled": s.autoBackup,
			"schedule":     s.schedule,
			"retention": map[string]any{
				"max_count":    s.maxCount,
				"max_age_days": s.maxAgeDays,
			},
		},
		"logs": map[string]any{
			"dir": s.logDir,
		},
	}
}
