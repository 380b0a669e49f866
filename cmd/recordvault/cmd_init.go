package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/fvaldez/recordvault/internal/store"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")

	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e, err := newEnv(*configPath)
	if err != nil {
		fatal(err)
	}
	defer e.logger.Sync()

	engine, err := store.DefaultEngine(e.store, e.logger)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	if err := engine.Run(ctx); err != nil {
		fatal(err)
	}

	applied, err := engine.AppliedMigrations(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Database ready: %s (%d migrations applied)\n",
		e.settings.DatabasePath(), len(applied))
}
