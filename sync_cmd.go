package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/sync"
)

var (
	flagSyncFrom string
	flagSyncTo   string
	flagSyncFull bool
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the events",
		Long: "Fetches events for the given window. Uses a delta fetch when a sync " +
			"cursor exists unless --full forces a complete window fetch.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagSyncFrom, "from", "", "window start (RFC3339, default one week ago)")
	cmd.Flags().StringVar(&flagSyncTo, "to", "", "window end (RFC3339, default five weeks ahead)")
	cmd.Flags().BoolVar(&flagSyncFull, "full", false, "force a full window fetch")

	return cmd
}

func runSync(ctx context.Context) error {
	logger := buildLogger()

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.Engine(resolvedCfg.UserID)
	if err != nil {
		return err
	}

	win, err := syncWindow()
	if err != nil {
		return err
	}

	start := time.Now()

	result, err := runSyncCycle(ctx, engine, win)
	if err != nil {
		return err
	}

	statusf(flagQuiet, "Synced %d events in %s (state: %s)\n",
		len(result), time.Since(start).Round(time.Millisecond), engine.State())

	printEvents(os.Stdout, result)

	return nil
}

func runSyncCycle(ctx context.Context, engine *sync.Engine, win sync.Window) ([]eventRow, error) {
	if flagSyncFull {
		events, err := engine.FullSync(ctx, win)
		return toRows(events), err
	}

	if err := engine.SyncNow(ctx, win); err != nil {
		return nil, err
	}

	events, err := engine.Events(ctx, win)

	return toRows(events), err
}

func syncWindow() (sync.Window, error) {
	now := time.Now()
	win := sync.Window{Min: now.AddDate(0, 0, -7), Max: now.AddDate(0, 0, 35)}

	if flagSyncFrom != "" {
		t, err := time.Parse(time.RFC3339, flagSyncFrom)
		if err != nil {
			return sync.Window{}, fmt.Errorf("--from must be RFC3339: %w", err)
		}

		win.Min = t
	}

	if flagSyncTo != "" {
		t, err := time.Parse(time.RFC3339, flagSyncTo)
		if err != nil {
			return sync.Window{}, fmt.Errorf("--to must be RFC3339: %w", err)
		}

		win.Max = t
	}

	return win, nil
}
