package main

import (
	"log/slog"
	stdsync "sync"

	"github.com/ozenc/takvim/internal/config"
	"github.com/ozenc/takvim/internal/gcal"
	"github.com/ozenc/takvim/internal/store"
	"github.com/ozenc/takvim/internal/sync"
	"github.com/ozenc/takvim/internal/tokens"
)

// app wires the long-lived collaborators: one store and token manager,
// and a lazily-built sync engine per user. It implements api.EngineProvider.
type app struct {
	cfg     *config.Config
	store   *store.Store
	manager *tokens.Manager
	logger  *slog.Logger

	mu      stdsync.Mutex
	engines map[string]*sync.Engine
}

// newApp opens the store and builds the token manager.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.New(cfg.StateDB, logger)
	if err != nil {
		return nil, err
	}

	manager := tokens.NewManager(st, tokens.Config{
		TokenURL:     cfg.Google.TokenURL,
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
	}, defaultHTTPClient(), logger)

	return &app{
		cfg:     cfg,
		store:   st,
		manager: manager,
		logger:  logger,
		engines: make(map[string]*sync.Engine),
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// gcalClient builds an API client authenticated as the given user.
func (a *app) gcalClient(userID string) *gcal.Client {
	return gcal.NewClient(a.cfg.Google.BaseURL, defaultHTTPClient(), a.manager.Source(userID), a.logger)
}

// Engine returns the sync engine for a user, creating it on first use.
// Engines share the store and token manager but own their event state.
func (a *app) Engine(userID string) (*sync.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if eng, ok := a.engines[userID]; ok {
		return eng, nil
	}

	client := a.gcalClient(userID)

	eng := sync.NewEngine(&sync.EngineConfig{
		UserID:          userID,
		Client:          client,
		Store:           a.store,
		DefaultTimeZone: a.cfg.DefaultTimeZone,
		Logger:          a.logger,
	})

	a.engines[userID] = eng

	return eng, nil
}
