package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozenc/takvim/internal/api"
	"github.com/ozenc/takvim/internal/config"
	"github.com/ozenc/takvim/internal/finance"
	"github.com/ozenc/takvim/internal/sync"
)

// serveShutdownTimeout bounds the HTTP server drain on shutdown.
const serveShutdownTimeout = 10 * time.Second

var flagListenAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background sync poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagListenAddr, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(parent context.Context) error {
	logger := buildLogger()
	ctx := shutdownContext(parent, logger)

	if flagListenAddr != "" {
		resolvedCfg.ListenAddr = flagListenAddr
	}

	if resolvedCfg.Session.Secret == "" {
		return fmt.Errorf("session.secret is not configured (set it in the config file or %s)", config.EnvSessionSecret)
	}

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(api.Config{
		Engines:       a,
		Rates:         finance.NewRatesClient(resolvedCfg.Finance.RatesBaseURL, defaultHTTPClient(), logger),
		Analyzer:      buildAnalyzer(logger),
		SessionSecret: []byte(resolvedCfg.Session.Secret),
		Logger:        logger,
	})

	engine, err := a.Engine(resolvedCfg.UserID)
	if err != nil {
		return err
	}

	poller := sync.NewPoller(engine,
		resolvedCfg.PollIntervalDuration(),
		resolvedCfg.PollInitialDelayDuration(),
		logger,
	)
	poller.Start(ctx)
	defer poller.Stop()

	stopWatch := watchConfigFile(logger)
	if stopWatch != nil {
		defer stopWatch()
	}

	httpSrv := &http.Server{
		Addr:              resolvedCfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("API server listening", slog.String("addr", resolvedCfg.ListenAddr))

		if serveErr := httpSrv.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}

	logger.Info("server stopped")

	return nil
}

// buildAnalyzer returns the receipt analyzer, or nil when no API key is
// configured — the endpoint then reports misconfiguration instead of
// failing on every call.
func buildAnalyzer(logger *slog.Logger) *finance.Analyzer {
	if resolvedCfg.Finance.OpenAIAPIKey == "" {
		logger.Info("receipt analysis disabled: no OpenAI API key configured")
		return nil
	}

	return finance.NewAnalyzer(
		resolvedCfg.Finance.OpenAIBaseURL,
		resolvedCfg.Finance.OpenAIAPIKey,
		defaultHTTPClient(),
		logger,
	)
}

// watchConfigFile hot-reloads the log level when the config file changes.
// Other settings require a restart; changing them mid-flight would tear
// down live engines. Returns nil when no config file exists to watch.
func watchConfigFile(logger *slog.Logger) func() {
	path := config.DefaultConfigPath()
	if flagConfigPath != "" {
		path = flagConfigPath
	}

	stop, err := config.Watch(path, func(cfg *config.Config) {
		logLevel.Set(parseLevel(cfg.LogLevel))
		logger.Info("log level updated", slog.String("level", cfg.LogLevel))
	}, logger)
	if err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		return nil
	}

	return stop
}
