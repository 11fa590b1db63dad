package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ozenc/takvim/internal/gcal"
	"github.com/ozenc/takvim/internal/sync"
)

// eventsResponse is the list endpoint body. NextSyncToken is set once
// every selected calendar has a saved cursor; sending it back on a later
// request selects the delta read path.
type eventsResponse struct {
	Events        []gcal.Event `json:"events"`
	NextSyncToken string       `json:"nextSyncToken,omitempty"`
}

// handleListEvents serves the window read path. With a syncToken present
// the engine runs a delta sync against its stored cursors; otherwise a
// cached or full window fetch.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	win, err := parseWindow(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var events []gcal.Event

	if r.URL.Query().Get("syncToken") != "" {
		events, err = engine.DeltaSync(r.Context(), win)
	} else {
		events, err = engine.Events(r.Context(), win)
	}

	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if events == nil {
		events = []gcal.Event{}
	}

	token, err := engine.DeltaToken(r.Context())
	if err != nil {
		s.logger.Warn("delta token unavailable", slog.String("error", err.Error()))
	}

	s.writeJSON(w, http.StatusOK, eventsResponse{Events: events, NextSyncToken: token})
}

// createEventRequest is the create endpoint body.
type createEventRequest struct {
	CalendarID  string `json:"calendarId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"allDay"`
	TimeZone    string `json:"timeZone"`
	ColorID     string `json:"colorId"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := engine.Create(r.Context(), sync.EventDraft{
		CalendarID:  req.CalendarID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start:       req.Start,
		End:         req.End,
		AllDay:      req.AllDay,
		TimeZone:    req.TimeZone,
		ColorID:     req.ColorID,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

// updateEventRequest is the patch endpoint body. Absent fields are left
// unchanged.
type updateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
	AllDay      *bool   `json:"allDay"`
	TimeZone    *string `json:"timeZone"`
	ColorID     *string `json:"colorId"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := engine.Update(r.Context(), r.PathValue("id"), sync.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start:       req.Start,
		End:         req.End,
		AllDay:      req.AllDay,
		TimeZone:    req.TimeZone,
		ColorID:     req.ColorID,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

// handleDeleteEvent removes an event. Deleting an event the remote has
// already dropped succeeds with the same 204 as a first delete.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if err := engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
