package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)

	return ts
}

func TestListEvents_WindowParams(t *testing.T) {
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"items":[{"id":"a","summary":"One"}],"nextSyncToken":"tok-1"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	page, err := client.ListEvents(context.Background(), "primary", ListQuery{
		TimeMin: mustTime(t, "2026-02-14T00:00:00Z"),
		TimeMax: mustTime(t, "2026-03-28T00:00:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-02-14T00:00:00Z"}, gotQuery["timeMin"])
	assert.Equal(t, []string{"2026-03-28T00:00:00Z"}, gotQuery["timeMax"])
	assert.Equal(t, []string{"true"}, gotQuery["singleEvents"])
	assert.Equal(t, []string{"250"}, gotQuery["maxResults"])
	assert.NotContains(t, gotQuery, "syncToken")

	require.Len(t, page.Events, 1)
	assert.Equal(t, "a", page.Events[0].ID)
	assert.Equal(t, "primary", page.Events[0].CalendarID)
	assert.Equal(t, "tok-1", page.NextSyncToken)
}

// A sync token and a time window are mutually exclusive on the wire.
func TestListEvents_SyncTokenExcludesWindow(t *testing.T) {
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"items":[],"nextSyncToken":"tok-2"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	page, err := client.ListEvents(context.Background(), "primary", ListQuery{
		TimeMin:   mustTime(t, "2026-02-14T00:00:00Z"),
		TimeMax:   mustTime(t, "2026-03-28T00:00:00Z"),
		SyncToken: "tok-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-1"}, gotQuery["syncToken"])
	assert.NotContains(t, gotQuery, "timeMin")
	assert.NotContains(t, gotQuery, "timeMax")
	assert.Equal(t, "tok-2", page.NextSyncToken)
}

func TestListEvents_Pagination(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("pageToken"))
			_, _ = w.Write([]byte(`{"items":[{"id":"a"}],"nextPageToken":"page-2"}`))
		default:
			assert.Equal(t, "page-2", r.URL.Query().Get("pageToken"))
			_, _ = w.Write([]byte(`{"items":[{"id":"b"}],"nextSyncToken":"tok-1"}`))
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	page, err := client.ListEvents(context.Background(), "primary", ListQuery{SyncToken: "tok-0"})
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	assert.Equal(t, "a", page.Events[0].ID)
	assert.Equal(t, "b", page.Events[1].ID)
	assert.Equal(t, "tok-1", page.NextSyncToken)
	assert.Equal(t, int32(2), calls.Load())
}

// An expired sync token comes back as 410; callers detect it via ErrGone.
func TestListEvents_ExpiredSyncToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Sync token is no longer valid"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.ListEvents(context.Background(), "primary", ListQuery{SyncToken: "stale"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGone)
}

func TestInsertEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Dinner", body["summary"])

		_, _ = w.Write([]byte(`{"id":"new-1","summary":"Dinner","start":{"dateTime":"2026-02-21T19:00:00"},"end":{"dateTime":"2026-02-21T21:00:00"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	ev, err := client.InsertEvent(context.Background(), "primary", EventWrite{
		Title:    "Dinner",
		Start:    "2026-02-21T19:00:00",
		End:      "2026-02-21T21:00:00",
		TimeZone: "Europe/Istanbul",
	})
	require.NoError(t, err)

	assert.Equal(t, "new-1", ev.ID)
	assert.Equal(t, "primary", ev.CalendarID)
	assert.False(t, ev.AllDay)
}

func TestPatchEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/calendars/primary/events/ev-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"ev-1","summary":"Moved","start":{"date":"2026-03-10"},"end":{"date":"2026-03-11"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	ev, err := client.PatchEvent(context.Background(), "primary", "ev-1", EventWrite{
		Title:  "Moved",
		Start:  "2026-03-10",
		End:    "2026-03-10",
		AllDay: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Moved", ev.Title)
	assert.True(t, ev.AllDay)
}

// Deleting an event that no longer exists is success: the desired end
// state (event gone) already holds, and a repeat delete must not error.
func TestDeleteEvent_Idempotent(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"deleted upstream", http.StatusNotFound},
		{"gone", http.StatusGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":` + fmt.Sprint(tt.status) + `}}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			err := client.DeleteEvent(context.Background(), "primary", "ev-1")
			assert.NoError(t, err)
		})
	}
}

func TestDeleteEvent_OtherErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.DeleteEvent(context.Background(), "primary", "ev-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListCalendars_Pagination(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/calendarList", r.URL.Path)

		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"items":[{"id":"primary","summary":"Özenç","primary":true}],"nextPageToken":"p2"}`))

			return
		}

		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"items":[{"id":"work@group.calendar.google.com","summary":"Work"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	calendars, err := client.ListCalendars(context.Background())
	require.NoError(t, err)

	require.Len(t, calendars, 2)
	assert.True(t, calendars[0].Primary)
	assert.Equal(t, "Work", calendars[1].Summary)
}
