package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fvaldez/recordvault/internal/backup"
)

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	input := fs.String("input", "", "backup archive filename to restore (required)")
	withConfig := fs.Bool("with-config", false, "also extract the archived settings snapshot")
	configOut := fs.String("config-out", "", "file to write the extracted settings snapshot to")

	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		fs.Usage()
		os.Exit(2)
	}

	e, err := newEnv(*configPath)
	if err != nil {
		fatal(err)
	}
	defer e.logger.Sync()

	rec, err := findBackup(e.backups, *input)
	if err != nil {
		fatal(err)
	}

	opts := backup.RestoreOptions{
		RestoreDatabase: true,
		RestoreConfig:   *withConfig || *configOut != "",
	}
	result, err := e.backups.Restore(context.Background(), rec, opts, printProgress)
	if err != nil {
		fatal(fmt.Errorf("restore failed: %w", err))
	}

	fmt.Printf("Restore complete from %s\n", rec.Filename)
	fmt.Printf("Safety backup: %s\n", result.SafetyBackup.Filename)

	if result.ConfigSnapshot != nil {
		out := *configOut
		if out == "" {
			out = rec.Filename + ".settings.yaml"
		}
		if err := os.WriteFile(out, result.ConfigSnapshot, 0o644); err != nil {
			fatal(fmt.Errorf("write settings snapshot: %w", err))
		}
		// Applying archived settings requires a restart with the new file.
		fmt.Printf("Settings snapshot written to %s\n", out)
	}
}

// findBackup locates a catalog record by archive filename.
func findBackup(m *backup.Manager, filename string) (*backup.Record, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Filename == filename {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("backup %q not found", filename)
}
