// Command recordvault manages the embedded record database: schema
// initialization, backups, and restores.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fvaldez/recordvault/internal/backup"
	"github.com/fvaldez/recordvault/internal/config"
	"github.com/fvaldez/recordvault/internal/store"
	"github.com/fvaldez/recordvault/internal/version"
)

const usage = `usage: recordvault <command> [flags]

commands:
  init      initialize the database schema and apply migrations
  backup    create a backup archive
  restore   restore a backup archive
  backups   list, inspect, or delete backup archives
  version   print version information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "backup":
		runBackup(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "backups":
		runBackups(os.Args[2:])
	case "version", "--version":
		fmt.Println(version.Info())
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// env bundles everything a subcommand needs.
type env struct {
	settings *config.Settings
	store    *store.Manager
	backups  *backup.Manager
	logger   *zap.Logger
}

func newEnv(configPath string) (*env, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st := store.NewManager(settings.DatabasePath(), logger)
	return &env{
		settings: settings,
		store:    st,
		backups:  backup.NewManager(st, settings, logger),
		logger:   logger,
	}, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// printProgress reports backup/restore steps on stdout.
func printProgress(pct int, msg string) {
	fmt.Printf("[%3d%%] %s\n", pct, msg)
}
