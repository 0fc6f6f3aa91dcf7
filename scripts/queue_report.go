package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"sitesync/internal/export"
	"sitesync/internal/store"
)

// Operational report over an engine database: pending queue, cache sync
// state and dead letters. Runs offline against the db file, no daemon
// required.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath  = flag.String("db", "./data/engine.db", "path to the engine sqlite db")
		xlsxDir = flag.String("xlsx", "", "also write a failed-mutations xlsx report into this directory")
	)
	flag.Parse()

	st, err := store.New(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mutations, err := st.ListMutations(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	fmt.Printf("pending mutations: %d\n", len(mutations))
	for _, m := range mutations {
		fmt.Printf("  %s  %-6s %s  attempts=%d/%d  queued=%s\n",
			m.ID, m.Method, m.TargetURL, m.Attempts, m.MaxAttempts, m.CreatedAt.Format(time.RFC3339))
	}

	dirty, err := st.ListDirtyEntities(ctx)
	if err != nil {
		return fmt.Errorf("list dirty entities: %w", err)
	}
	fmt.Printf("entities with unsent local changes: %d\n", len(dirty))
	for _, e := range dirty {
		fmt.Printf("  %s  updated=%s synced=%s\n",
			e.ID, e.LastUpdated.Format(time.RFC3339), e.LastSynced.Format(time.RFC3339))
	}

	letters, err := st.ListDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}
	fmt.Printf("dead letters: %d\n", len(letters))
	for _, d := range letters {
		fmt.Printf("  %s  %-6s %s  reason=%s attempts=%d failed=%s\n",
			d.MutationID, d.Method, d.TargetURL, d.Reason, d.Attempts, d.FailedAt.Format(time.RFC3339))
	}

	if *xlsxDir != "" && len(letters) > 0 {
		path, err := export.FailedMutations(letters, *xlsxDir)
		if err != nil {
			return fmt.Errorf("write xlsx report: %w", err)
		}
		fmt.Printf("xlsx report written to %s\n", path)
	}

	settings, err := st.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.LastSyncAt.IsZero() {
		fmt.Println("last sync: never")
	} else {
		fmt.Printf("last sync: %s\n", settings.LastSyncAt.Format(time.RFC3339))
	}
	return nil
}
