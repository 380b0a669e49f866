package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/fvaldez/recordvault/internal/backup"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	description := fs.String("description", "", "free-text description stored in the archive")

	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e, err := newEnv(*configPath)
	if err != nil {
		fatal(err)
	}
	defer e.logger.Sync()

	rec, err := e.backups.Create(context.Background(), backup.KindManual, *description, printProgress)
	if err != nil {
		fatal(fmt.Errorf("backup failed: %w", err))
	}
	fmt.Printf("Backup created: %s (%d bytes, sha256 %s)\n", rec.Path, rec.SizeBytes, rec.Checksum)
}
