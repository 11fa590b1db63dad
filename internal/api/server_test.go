package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozenc/takvim/internal/finance"
	"github.com/ozenc/takvim/internal/gcal"
	"github.com/ozenc/takvim/internal/store"
	"github.com/ozenc/takvim/internal/sync"
	"github.com/ozenc/takvim/internal/tokens"
)

// stubClient is a canned sync.EventClient for handler tests.
type stubClient struct {
	page      *gcal.EventPage
	listErr   error
	created   *gcal.Event
	insertErr error
	patched   *gcal.Event
	patchErr  error
	deleteErr error
}

func (c *stubClient) ListEvents(_ context.Context, _ string, _ gcal.ListQuery) (*gcal.EventPage, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}

	if c.page == nil {
		return &gcal.EventPage{}, nil
	}

	return c.page, nil
}

func (c *stubClient) InsertEvent(_ context.Context, _ string, _ gcal.EventWrite) (*gcal.Event, error) {
	return c.created, c.insertErr
}

func (c *stubClient) PatchEvent(_ context.Context, _, _ string, _ gcal.EventWrite) (*gcal.Event, error) {
	return c.patched, c.patchErr
}

func (c *stubClient) DeleteEvent(_ context.Context, _, _ string) error {
	return c.deleteErr
}

// stubStore is a minimal sync.CursorStore.
type stubStore struct {
	cursor string
}

func (s *stubStore) Cursor(_ context.Context, _, _ string) (string, error) { return s.cursor, nil }

func (s *stubStore) SaveCursor(_ context.Context, _, _, token, _, _ string) error {
	s.cursor = token
	return nil
}

func (s *stubStore) DeleteCursor(_ context.Context, _, _ string) error {
	s.cursor = ""
	return nil
}

func (s *stubStore) ResolveCalendarID(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (s *stubStore) SelectedCalendars(_ context.Context, _ string) ([]store.CalendarMapping, error) {
	return nil, nil
}

// singleEngine serves one engine regardless of user id.
type singleEngine struct {
	engine *sync.Engine
	err    error
}

func (p *singleEngine) Engine(_ string) (*sync.Engine, error) {
	return p.engine, p.err
}

// newAPITest builds a server over an engine backed by the stub client,
// plus an authenticated request helper.
func newAPITest(t *testing.T, client *stubClient) (*Server, func(method, path string, body any) *httptest.ResponseRecorder) {
	t.Helper()

	engine := sync.NewEngine(&sync.EngineConfig{
		UserID:          "ozenc",
		Client:          client,
		Store:           &stubStore{},
		DefaultTimeZone: "Europe/Istanbul",
		Logger:          slog.Default(),
	})

	srv := NewServer(Config{
		Engines:       &singleEngine{engine: engine},
		SessionSecret: testSecret,
		Logger:        slog.Default(),
	})

	token, err := IssueSession(testSecret, "ozenc", nil)
	require.NoError(t, err)

	handler := srv.Handler()

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}

		r := httptest.NewRequest(method, path, &buf)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		return w
	}

	return srv, do
}

func TestListEvents(t *testing.T) {
	client := &stubClient{page: &gcal.EventPage{
		Events:        []gcal.Event{{ID: "a", Title: "Standup", Start: "2026-02-21T09:00:00", End: "2026-02-21T09:15:00", CalendarID: "primary"}},
		NextSyncToken: "tok-1",
	}}

	_, do := newAPITest(t, client)

	w := do(http.MethodGet, "/calendar/events?timeMin=2026-02-14T00:00:00Z&timeMax=2026-03-28T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "a", resp.Events[0].ID)
	assert.NotEmpty(t, resp.NextSyncToken, "cursor captured, delta token offered")
}

// Sending the token from a previous response back selects the delta read
// path instead of a full window fetch.
func TestListEvents_SyncTokenSelectsDelta(t *testing.T) {
	client := &stubClient{page: &gcal.EventPage{
		Events:        []gcal.Event{{ID: "a", Title: "Standup", Start: "2026-02-21T09:00:00", End: "2026-02-21T09:15:00", CalendarID: "primary"}},
		NextSyncToken: "tok-1",
	}}

	_, do := newAPITest(t, client)

	w := do(http.MethodGet, "/calendar/events?timeMin=2026-02-14T00:00:00Z&timeMax=2026-03-28T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.NextSyncToken)

	w = do(http.MethodGet, "/calendar/events?timeMin=2026-02-14T00:00:00Z&timeMax=2026-03-28T00:00:00Z&syncToken="+resp.NextSyncToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var delta eventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delta))
	require.Len(t, delta.Events, 1)
	assert.Equal(t, "a", delta.Events[0].ID)
	assert.NotEmpty(t, delta.NextSyncToken)
}

func TestListEvents_DefaultWindow(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodGet, "/calendar/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`, "empty result is [], not null")
}

func TestListEvents_BadWindow(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodGet, "/calendar/events?timeMin=yesterday&timeMax=2026-03-28T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEvents_Unauthenticated(t *testing.T) {
	srv, _ := newAPITest(t, &stubClient{})

	r := httptest.NewRequest(http.MethodGet, "/calendar/events", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateEvent(t *testing.T) {
	created := &gcal.Event{ID: "new-1", Title: "Dinner", Start: "2026-02-21T19:00:00", End: "2026-02-21T21:00:00", CalendarID: "primary"}

	_, do := newAPITest(t, &stubClient{created: created})

	w := do(http.MethodPost, "/calendar/events", map[string]any{
		"title": "Dinner",
		"start": "2026-02-21T19:00:00",
		"end":   "2026-02-21T21:00:00",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got gcal.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "new-1", got.ID)
}

func TestCreateEvent_Invalid(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	// Missing title fails validation before any remote call.
	w := do(http.MethodPost, "/calendar/events", map[string]any{
		"start": "2026-02-21T19:00:00",
		"end":   "2026-02-21T21:00:00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateEvent_NotFound(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodPatch, "/calendar/events/ghost", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEvent(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodDelete, "/calendar/events/ev-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// Engine errors carrying the API sentinels map onto the HTTP surface.
func TestWriteEngineError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unclassified remote failure", errors.New("upstream exploded"), http.StatusBadGateway},
		{"not connected", tokens.ErrNotConnected, http.StatusUnauthorized},
		{"unauthorized", &gcal.APIError{StatusCode: 401, Err: gcal.ErrUnauthorized}, http.StatusUnauthorized},
		{"expired sync token", &gcal.APIError{StatusCode: 410, Err: gcal.ErrGone}, http.StatusGone},
		{"invalid event", sync.ErrInvalidEvent, http.StatusBadRequest},
		{"event not found", sync.ErrEventNotFound, http.StatusNotFound},
	}

	srv := NewServer(Config{SessionSecret: testSecret, Logger: slog.Default()})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.writeEngineError(w, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestExchangeRates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"date":"2026-02-21","rates":{"USD":0.025,"EUR":0.023}}`))
	}))
	defer upstream.Close()

	engine := sync.NewEngine(&sync.EngineConfig{
		UserID: "ozenc",
		Client: &stubClient{},
		Store:  &stubStore{},
		Logger: slog.Default(),
	})

	srv := NewServer(Config{
		Engines:       &singleEngine{engine: engine},
		Rates:         finance.NewRatesClient(upstream.URL, http.DefaultClient, slog.Default()),
		SessionSecret: testSecret,
		Logger:        slog.Default(),
	})

	token, err := IssueSession(testSecret, "ozenc", nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/finance/exchange-rates", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), `"USD":"40"`)
}

func TestExchangeRates_Unconfigured(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodGet, "/finance/exchange-rates", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnalyzeReceipt_Unconfigured(t *testing.T) {
	_, do := newAPITest(t, &stubClient{})

	w := do(http.MethodPost, "/finance/analyze-receipt", map[string]any{
		"imageBase64":   "aGVsbG8=",
		"imageMimeType": "image/jpeg",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnalyzeReceipt_MissingImage(t *testing.T) {
	engine := sync.NewEngine(&sync.EngineConfig{
		UserID: "ozenc",
		Client: &stubClient{},
		Store:  &stubStore{},
		Logger: slog.Default(),
	})

	srv := NewServer(Config{
		Engines:       &singleEngine{engine: engine},
		Analyzer:      finance.NewAnalyzer("http://unused", "sk-test", http.DefaultClient, slog.Default()),
		SessionSecret: testSecret,
		Logger:        slog.Default(),
	})

	token, err := IssueSession(testSecret, "ozenc", nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/finance/analyze-receipt", bytes.NewBufferString(`{}`))
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
