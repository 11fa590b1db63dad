package main

import (
	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/store"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Disconnect and clear all stored state",
		Long:  "Removes the stored credential, sync cursors, and calendar mappings for the configured user.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			st, err := store.New(resolvedCfg.StateDB, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ClearUser(cmd.Context(), resolvedCfg.UserID); err != nil {
				return err
			}

			statusf(flagQuiet, "Logged out. All state cleared for user %q.\n", resolvedCfg.UserID)

			return nil
		},
	}
}
