package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// eventsPageSize is the maxResults value for events.list requests.
// 250 is the Calendar API maximum per page.
const eventsPageSize = 250

// ListQuery selects which events to fetch. Either a time window (full
// sync) or an opaque sync token (delta sync) — not both. The API rejects
// window parameters when a sync token is present.
type ListQuery struct {
	TimeMin   time.Time
	TimeMax   time.Time
	SyncToken string
}

// EventPage is the combined result of a full events.list enumeration:
// all pages' events plus the sync token for the next delta fetch.
type EventPage struct {
	Events        []Event
	NextSyncToken string
}

// ListEvents fetches all pages of events for one calendar, either by time
// window or by sync token. Recurring events are expanded to single
// instances. HTTP 410 means the sync token has expired — the error wraps
// ErrGone and the caller must fall back to a full window fetch.
func (c *Client) ListEvents(ctx context.Context, calendarID string, q ListQuery) (*EventPage, error) {
	c.logger.Info("fetching events",
		slog.String("calendar_id", calendarID),
		slog.Bool("delta", q.SyncToken != ""),
	)

	page := &EventPage{}
	pageToken := ""
	pages := 0

	for {
		resp, err := c.listEventsPage(ctx, calendarID, q, pageToken)
		if err != nil {
			return nil, err
		}

		for i := range resp.Items {
			page.Events = append(page.Events, resp.Items[i].toEvent(calendarID))
		}

		pages++

		if resp.NextSyncToken != "" {
			page.NextSyncToken = resp.NextSyncToken
		}

		if resp.NextPageToken == "" {
			c.logger.Debug("event enumeration complete",
				slog.String("calendar_id", calendarID),
				slog.Int("events", len(page.Events)),
				slog.Int("pages", pages),
				slog.Bool("has_sync_token", page.NextSyncToken != ""),
			)

			return page, nil
		}

		pageToken = resp.NextPageToken
	}
}

// listEventsPage fetches a single events.list page.
func (c *Client) listEventsPage(ctx context.Context, calendarID string, q ListQuery, pageToken string) (*eventListResponse, error) {
	params := url.Values{}
	params.Set("maxResults", fmt.Sprint(eventsPageSize))
	params.Set("singleEvents", "true")

	if q.SyncToken != "" {
		params.Set("syncToken", q.SyncToken)
	} else {
		params.Set("timeMin", q.TimeMin.Format(time.RFC3339))
		params.Set("timeMax", q.TimeMax.Format(time.RFC3339))
	}

	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(calendarID), params.Encode())

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr eventListResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("gcal: decoding event list: %w", err)
	}

	return &lr, nil
}

// InsertEvent creates an event and returns the server's canonical copy.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, w EventWrite) (*Event, error) {
	payload, err := writePayload(w)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gcal: encoding event: %w", err)
	}

	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))

	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeEvent(resp, calendarID)
}

// PatchEvent updates an event in place and returns the server's canonical
// copy. The write carries the merged post-patch field values; the payload
// sets the unused date/dateTime field to null so timed<->all-day switches
// are accepted.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, w EventWrite) (*Event, error) {
	payload, err := writePayload(w)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gcal: encoding event: %w", err)
	}

	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))

	resp, err := c.Do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeEvent(resp, calendarID)
}

// DeleteEvent removes an event. Deleting an event that is already gone
// (404 or 410) is treated as success — the desired end state holds.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone) {
			c.logger.Debug("event already deleted",
				slog.String("calendar_id", calendarID),
				slog.String("event_id", eventID),
			)

			return nil
		}

		return err
	}

	resp.Body.Close()

	return nil
}

// ListCalendars fetches the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var calendars []Calendar

	pageToken := ""

	for {
		params := url.Values{}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		path := "/users/me/calendarList"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var lr calendarListResponse
		err = json.NewDecoder(resp.Body).Decode(&lr)
		resp.Body.Close()

		if err != nil {
			return nil, fmt.Errorf("gcal: decoding calendar list: %w", err)
		}

		for _, item := range lr.Items {
			calendars = append(calendars, Calendar{
				ID:       item.ID,
				Summary:  item.Summary,
				TimeZone: item.TimeZone,
				Primary:  item.Primary,
			})
		}

		if lr.NextPageToken == "" {
			return calendars, nil
		}

		pageToken = lr.NextPageToken
	}
}

// decodeEvent parses a single event resource from a response body.
func decodeEvent(resp *http.Response, calendarID string) (*Event, error) {
	var er eventResource
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("gcal: decoding event response: %w", err)
	}

	ev := er.toEvent(calendarID)

	return &ev, nil
}
