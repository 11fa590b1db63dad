package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/api"
)

var flagTokenTTL time.Duration

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for the HTTP API",
		Long: "Prints a signed session token for the current user. Clients send it " +
			"as `Authorization: Bearer <token>` on API requests.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken()
		},
	}

	cmd.Flags().DurationVar(&flagTokenTTL, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

func runToken() error {
	if resolvedCfg.Session.Secret == "" {
		return errors.New("session.secret is not configured (set TAKVIM_SESSION_SECRET or session.secret in the config file)")
	}

	now := time.Now()

	token, err := api.IssueSession([]byte(resolvedCfg.Session.Secret), resolvedCfg.UserID, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(flagTokenTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("signing session token: %w", err)
	}

	fmt.Println(token)

	return nil
}
