// Package api serves the HTTP interface: calendar event CRUD backed by
// the sync engine, finance endpoints, and a websocket change stream.
// Requests authenticate with a bearer session token (HS256 JWT) whose
// subject claim is the user id.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ozenc/takvim/internal/finance"
	"github.com/ozenc/takvim/internal/gcal"
	"github.com/ozenc/takvim/internal/sync"
	"github.com/ozenc/takvim/internal/tokens"
)

// EngineProvider hands out the sync engine for a user. The serve command
// implements it with a lazy per-user registry sharing one store and token
// manager.
type EngineProvider interface {
	Engine(userID string) (*sync.Engine, error)
}

// Config holds the server's collaborators.
type Config struct {
	Engines       EngineProvider
	Rates         *finance.RatesClient
	Analyzer      *finance.Analyzer
	SessionSecret []byte
	Logger        *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	engines       EngineProvider
	rates         *finance.RatesClient
	analyzer      *finance.Analyzer
	sessionSecret []byte
	logger        *slog.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		engines:       cfg.Engines,
		rates:         cfg.Rates,
		analyzer:      cfg.Analyzer,
		sessionSecret: cfg.SessionSecret,
		logger:        logger,
	}
}

// Handler returns the routed HTTP handler with authentication applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /calendar/events", s.auth(s.handleListEvents))
	mux.HandleFunc("POST /calendar/events", s.auth(s.handleCreateEvent))
	mux.HandleFunc("PATCH /calendar/events/{id}", s.auth(s.handleUpdateEvent))
	mux.HandleFunc("DELETE /calendar/events/{id}", s.auth(s.handleDeleteEvent))
	mux.HandleFunc("GET /calendar/stream", s.auth(s.handleStream))
	mux.HandleFunc("POST /finance/analyze-receipt", s.auth(s.handleAnalyzeReceipt))
	mux.HandleFunc("GET /finance/exchange-rates", s.auth(s.handleExchangeRates))

	return mux
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes a response body. Encoding failures are logged only —
// the status line is already on the wire.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encoding response failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps engine and client errors onto the HTTP surface:
// missing or rejected credentials mean the calendar is disconnected (401),
// an expired sync token is 410, validation failures are 400, and anything
// else is a remote failure (502).
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tokens.ErrNotConnected), errors.Is(err, gcal.ErrUnauthorized):
		s.writeError(w, http.StatusUnauthorized, "calendar disconnected, reconnect required")
	case errors.Is(err, gcal.ErrGone):
		s.writeError(w, http.StatusGone, "sync token expired, full sync required")
	case errors.Is(err, sync.ErrInvalidEvent), errors.Is(err, gcal.ErrBadRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sync.ErrEventNotFound), errors.Is(err, gcal.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// engineFor resolves the request's engine from the authenticated user id.
func (s *Server) engineFor(ctx context.Context) (*sync.Engine, error) {
	return s.engines.Engine(userIDFrom(ctx))
}

// parseWindow reads timeMin/timeMax query parameters. Both must be
// RFC3339; a missing pair defaults to a month-view window around now.
func parseWindow(r *http.Request) (sync.Window, error) {
	minStr := r.URL.Query().Get("timeMin")
	maxStr := r.URL.Query().Get("timeMax")

	if minStr == "" && maxStr == "" {
		now := time.Now()

		return sync.Window{Min: now.AddDate(0, 0, -7), Max: now.AddDate(0, 0, 35)}, nil
	}

	timeMin, err := time.Parse(time.RFC3339, minStr)
	if err != nil {
		return sync.Window{}, errors.New("timeMin must be RFC3339")
	}

	timeMax, err := time.Parse(time.RFC3339, maxStr)
	if err != nil {
		return sync.Window{}, errors.New("timeMax must be RFC3339")
	}

	return sync.Window{Min: timeMin, Max: timeMax}, nil
}
