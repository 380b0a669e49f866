package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

func runBackups(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	stats := fs.Bool("stats", false, "print aggregate statistics instead of the list")
	del := fs.String("delete", "", "delete the named backup archive")

	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e, err := newEnv(*configPath)
	if err != nil {
		fatal(err)
	}
	defer e.logger.Sync()

	if *del != "" {
		rec, err := findBackup(e.backups, *del)
		if err != nil {
			fatal(err)
		}
		if err := e.backups.Delete(rec); err != nil {
			fatal(err)
		}
		fmt.Printf("Deleted %s\n", rec.Filename)
		return
	}

	if *stats {
		s, err := e.backups.GetStatistics()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Backups: %d, total %d bytes\n", s.Total, s.TotalSizeBytes)
		for kind, n := range s.ByKind {
			fmt.Printf("  %-10s %d\n", kind, n)
		}
		if s.Newest != nil {
			fmt.Printf("Newest: %s (%s)\n", s.Newest.Filename, s.Newest.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if s.Oldest != nil {
			fmt.Printf("Oldest: %s (%s)\n", s.Oldest.Filename, s.Oldest.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return
	}

	records, err := e.backups.List()
	if err != nil {
		fatal(err)
	}
	if len(records) == 0 {
		fmt.Println("No backups found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tKIND\tCREATED\tSIZE\tDESCRIPTION")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.Filename, rec.Kind,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.SizeBytes, rec.Description)
	}
	w.Flush()
}
