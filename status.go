package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/finance"
)

var flagStatusRates bool

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection and sync state for the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&flagStatusRates, "rates", false, "also fetch current TRY exchange rates")

	return cmd
}

func runStatus(ctx context.Context) error {
	logger := buildLogger()

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	userID := resolvedCfg.UserID

	cred, err := a.store.Credential(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Printf("User:      %s\n", userID)

	if cred == nil {
		fmt.Println("Google:    not connected (run `takvim login`)")
	} else {
		remaining := time.Until(cred.Expiry).Round(time.Second)
		if remaining > 0 {
			fmt.Printf("Google:    connected (access token expires in %s)\n", remaining)
		} else {
			fmt.Println("Google:    connected (access token expired, will refresh on use)")
		}
	}

	calendars, err := a.store.SelectedCalendars(ctx, userID)
	if err != nil {
		return err
	}

	if len(calendars) == 0 {
		fmt.Println("Calendars: none mapped (primary calendar used by default)")
	} else {
		fmt.Printf("Calendars: %d selected\n", len(calendars))

		rows := make([][]string, 0, len(calendars))
		for _, c := range calendars {
			cursor, err := a.store.Cursor(ctx, userID, c.RemoteID)
			if err != nil {
				return err
			}

			state := "full fetch pending"
			if cursor != "" {
				state = "delta cursor saved"
			}

			rows = append(rows, []string{c.LocalID, c.Summary, state})
		}

		printTable(os.Stdout, []string{"ID", "NAME", "SYNC"}, rows)
	}

	if flagStatusRates {
		if err := printRates(ctx); err != nil {
			return err
		}
	}

	return nil
}

func printRates(ctx context.Context) error {
	client := finance.NewRatesClient(resolvedCfg.Finance.RatesBaseURL, defaultHTTPClient(), buildLogger())

	rates, err := client.Latest(ctx)
	if err != nil {
		return fmt.Errorf("fetching exchange rates: %w", err)
	}

	fmt.Printf("Rates:     1 USD = %s, 1 EUR = %s (as of %s)\n",
		finance.FormatTRYDecimal(rates.USD), finance.FormatTRYDecimal(rates.EUR), rates.Date)

	return nil
}
