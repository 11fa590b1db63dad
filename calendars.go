package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/store"
)

func newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "Manage the calendar list",
	}

	cmd.AddCommand(newCalendarsListCmd())
	cmd.AddCommand(newCalendarsRefreshCmd())

	return cmd
}

func newCalendarsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known calendars and their selection state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalendarsList(cmd.Context())
		},
	}
}

func newCalendarsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the calendar list from Google and update local mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalendarsRefresh(cmd.Context())
		},
	}
}

func runCalendarsList(ctx context.Context) error {
	logger := buildLogger()

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	calendars, err := a.store.SelectedCalendars(ctx, resolvedCfg.UserID)
	if err != nil {
		return err
	}

	if len(calendars) == 0 {
		statusf(flagQuiet, "No calendars mapped yet. Run `takvim calendars refresh`.\n")
		return nil
	}

	rows := make([][]string, 0, len(calendars))
	for _, c := range calendars {
		rows = append(rows, []string{c.LocalID, c.Summary, c.RemoteID})
	}

	printTable(os.Stdout, []string{"ID", "NAME", "REMOTE"}, rows)

	return nil
}

func runCalendarsRefresh(ctx context.Context) error {
	logger := buildLogger()

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	userID := resolvedCfg.UserID

	remote, err := a.gcalClient(userID).ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("listing calendars: %w", err)
	}

	existing, err := a.store.SelectedCalendars(ctx, userID)
	if err != nil {
		return err
	}

	// Preserve local ids across refreshes so references stay stable.
	localByRemote := make(map[string]string, len(existing))
	for _, c := range existing {
		localByRemote[c.RemoteID] = c.LocalID
	}

	added := 0

	for _, cal := range remote {
		localID, ok := localByRemote[cal.ID]
		if !ok {
			localID = uuid.NewString()
			added++
		}

		err := a.store.UpsertCalendar(ctx, userID, store.CalendarMapping{
			LocalID:  localID,
			RemoteID: cal.ID,
			Summary:  cal.Summary,
			Selected: true,
		})
		if err != nil {
			return err
		}
	}

	statusf(flagQuiet, "Refreshed %d calendars (%d new).\n", len(remote), added)

	return nil
}
