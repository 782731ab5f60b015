package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/kurakb/kura/internal/app"
	"github.com/kurakb/kura/internal/config"
	"github.com/kurakb/kura/internal/log"
)

var refreshSince string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one ingestion pass and exit",
	Long: `Fetches documents changed since the last successful refresh, embeds
them, and updates the knowledge store. A file lock prevents concurrent
refreshes from overlapping with a running server or another CLI invocation.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runRefresh()
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSince, "since", "",
		"only ingest documents modified after this RFC 3339 time (default: everything)")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var since time.Time
	if refreshSince != "" {
		since, err = time.Parse(time.RFC3339, refreshSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting user home directory: %w", err)
	}
	lock := flock.New(filepath.Join(home, ".kura", "refresh.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring refresh lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another refresh is already running")
	}
	defer func() { _ = lock.Unlock() }()

	ctx := context.Background()
	logger := log.New(log.Config{Level: cfg.SlogLevel()})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	result, err := a.Pipeline.Run(ctx, since)
	if result != nil {
		fmt.Printf("processed: %d, skipped: %d, failed: %d (%s)\n",
			result.Processed, result.Skipped, len(result.Failed), result.Duration.Round(time.Millisecond))
		for _, f := range result.Failed {
			fmt.Fprintf(os.Stderr, "  failed %s: %v\n", f.ID, f.Err)
		}
	}
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}
