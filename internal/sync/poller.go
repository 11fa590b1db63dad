package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default polling cadence: the first poll waits out the initial delay so
// it does not duplicate work right after the initial foreground fetch,
// then the recurring schedule takes over.
const (
	DefaultPollInterval = 3 * time.Minute
	DefaultInitialDelay = 30 * time.Second
)

// Poller triggers background syncs for the engine's current window.
// Background failures are logged and swallowed — the foreground view
// stays usable on stale data, so a failed poll must never surface an
// error to the user.
type Poller struct {
	engine       *Engine
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger

	// defaultWindow supplies a window before the first foreground fetch
	// sets one.
	defaultWindow func() Window

	cron         *cron.Cron
	initialTimer *time.Timer
}

// NewPoller creates a Poller with the given cadence. Zero durations take
// the defaults.
func NewPoller(engine *Engine, interval, initialDelay time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		engine:        engine,
		interval:      interval,
		initialDelay:  initialDelay,
		logger:        logger,
		defaultWindow: monthAround,
	}
}

// monthAround is the fallback polling window: one week back to five weeks
// ahead of now, roughly what a month view displays.
func monthAround() Window {
	now := time.Now()

	return Window{
		Min: now.AddDate(0, 0, -7),
		Max: now.AddDate(0, 0, 35),
	}
}

// Start schedules the first poll after the initial delay and the
// recurring polls on the cron schedule. ctx bounds each individual poll.
func (p *Poller) Start(ctx context.Context) {
	p.initialTimer = time.AfterFunc(p.initialDelay, func() {
		p.runOnce(ctx)
	})

	p.cron = cron.New()
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.runOnce(ctx)
	}))
	p.cron.Start()

	p.logger.Info("background poller started",
		slog.Duration("interval", p.interval),
		slog.Duration("initial_delay", p.initialDelay),
	)
}

// Stop cancels the pending initial poll and stops the recurring schedule,
// waiting for an in-flight poll to finish.
func (p *Poller) Stop() {
	if p.initialTimer != nil {
		p.initialTimer.Stop()
	}

	if p.cron != nil {
		<-p.cron.Stop().Done()
	}

	p.logger.Info("background poller stopped")
}

// runOnce performs one background sync for the current window.
func (p *Poller) runOnce(ctx context.Context) {
	win := p.engine.LastWindow()
	if win.IsZero() {
		win = p.defaultWindow()
	}

	if err := p.engine.SyncNow(ctx, win); err != nil {
		// Logged only: background sync failures never reach the user.
		p.logger.Warn("background sync failed",
			slog.String("error", err.Error()),
		)
	}
}
