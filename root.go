package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagUser       string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. Available to all subcommands after the root pre-run
// phase completes.
var resolvedCfg *config.Config

// logLevel is shared with the config hot-reload path so a changed
// log_level takes effect without restarting serve.
var logLevel = new(slog.LevelVar)

// httpClientTimeout is the default timeout for HTTP requests. Prevents
// hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "takvim",
		Short:   "Calendar sync engine and personal API",
		Long:    "Synchronizes Google Calendar events into a local engine and serves a personal calendar and finance API.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagUser, "user", "", "user id override")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "force JSON log output")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newSyncCmd(),
		newServeCmd(),
		newStatusCmd(),
		newCalendarsCmd(),
		newTokenCmd(),
	)

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		UserID:     flagUser,
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Config-file log level is the baseline; --verbose and
// --quiet override it because CLI flags always win. Format "auto" picks
// text on a terminal and JSON otherwise.
func buildLogger() *slog.Logger {
	logLevel.Set(slog.LevelInfo)

	if resolvedCfg != nil {
		logLevel.Set(parseLevel(resolvedCfg.LogLevel))
	}

	if flagVerbose {
		logLevel.Set(slog.LevelDebug)
	}

	if flagQuiet {
		logLevel.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	format := "auto"
	if resolvedCfg != nil {
		format = resolvedCfg.LogFormat
	}

	useJSON := flagJSON || format == "json" ||
		(format == "auto" && !isatty.IsTerminal(os.Stderr.Fd()))

	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
