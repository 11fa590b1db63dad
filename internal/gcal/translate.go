package gcal

import (
	"fmt"
	"strings"
	"time"
)

// dateLen is the length of a date-only value, "2006-01-02".
const dateLen = 10

// dateTimeLen is the length of a wall-clock value at seconds precision,
// "2006-01-02T15:04:05".
const dateTimeLen = 19

// StripOffset normalizes a datetime string to wall-clock form at seconds
// precision: "2026-02-21T17:30:00". Any trailing "Z" or "±HH:MM" offset is
// removed, not applied — the input may arrive UTC-tagged from a generic
// date serializer while the digits already encode the intended local time.
// Converting to UTC first would silently shift the time by the zone offset.
func StripOffset(s string) string {
	date, rest, found := strings.Cut(s, "T")
	if !found {
		return s
	}

	// Drop a trailing Z or ±HH:MM offset. Only the part after 'T' is
	// inspected, so the date's own dashes are never mistaken for an offset.
	rest = strings.TrimSuffix(rest, "Z")
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		rest = rest[:i]
	}

	// Drop fractional seconds.
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		rest = rest[:i]
	}

	// Pad "HH:MM" to "HH:MM:SS".
	if len(rest) == len("15:04") {
		rest += ":00"
	}

	out := date + "T" + rest
	if len(out) > dateTimeLen {
		out = out[:dateTimeLen]
	}

	return out
}

// IsDateOnly reports whether the value is a bare calendar date with no
// time component.
func IsDateOnly(s string) bool {
	return !strings.Contains(s, "T")
}

// datePart returns the date component of a date or datetime string.
func datePart(s string) string {
	if len(s) > dateLen {
		return s[:dateLen]
	}

	return s
}

// nextDay advances a "2006-01-02" date by one calendar day.
func nextDay(date string) (string, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return "", fmt.Errorf("gcal: invalid date %q: %w", date, err)
	}

	return t.AddDate(0, 0, 1).Format(time.DateOnly), nil
}

// writeTimes builds the start/end blocks for the write path.
//
// All-day events carry date-only values; the API requires an exclusive end
// date, so a single-day event (start date equals end date) has its end
// advanced by one day. Timed events carry wall-clock datetimes paired with
// an explicit IANA timezone; the unused field in each block serializes as
// explicit JSON null so timed<->all-day switches are accepted on patch.
func writeTimes(w EventWrite) (start, end *eventTimePayload, err error) {
	if w.Start == "" || w.End == "" {
		return nil, nil, fmt.Errorf("gcal: event start and end are required")
	}

	if w.AllDay {
		startDate := datePart(w.Start)
		endDate := datePart(w.End)

		if endDate == startDate {
			endDate, err = nextDay(endDate)
			if err != nil {
				return nil, nil, err
			}
		}

		return &eventTimePayload{Date: &startDate},
			&eventTimePayload{Date: &endDate},
			nil
	}

	if w.TimeZone == "" {
		return nil, nil, fmt.Errorf("gcal: timed event requires a timezone")
	}

	startDT := StripOffset(w.Start)
	endDT := StripOffset(w.End)
	tz := w.TimeZone

	return &eventTimePayload{DateTime: &startDT, TimeZone: &tz},
		&eventTimePayload{DateTime: &endDT, TimeZone: &tz},
		nil
}

// writePayload translates an EventWrite into the API request body.
// Empty location and colorId become explicit null ("cleared"), never "".
func writePayload(w EventWrite) (*eventPayload, error) {
	start, end, err := writeTimes(w)
	if err != nil {
		return nil, err
	}

	p := &eventPayload{
		Start: start,
		End:   end,
	}

	if w.Title != "" {
		p.Summary = &w.Title
	}

	if w.Description != "" {
		p.Description = &w.Description
	}

	if w.Location != "" {
		p.Location = &w.Location
	}

	if w.ColorID != "" {
		p.ColorID = &w.ColorID
	}

	return p, nil
}

// toEvent normalizes a Calendar API event resource into our Event type.
// An event is all-day iff it has a date and no dateTime.
func (r *eventResource) toEvent(calendarID string) Event {
	ev := Event{
		ID:          r.ID,
		Title:       r.Summary,
		Description: r.Description,
		Location:    r.Location,
		ColorID:     r.ColorID,
		CalendarID:  calendarID,
		Status:      r.Status,
		MeetLink:    r.HangoutLink,
	}

	if r.Start != nil {
		ev.AllDay = r.Start.Date != "" && r.Start.DateTime == ""
		ev.Start = firstNonEmpty(r.Start.DateTime, r.Start.Date)
	}

	if r.End != nil {
		ev.End = firstNonEmpty(r.End.DateTime, r.End.Date)
	}

	for _, a := range r.Attendees {
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:          a.Email,
			ResponseStatus: a.ResponseStatus,
			Self:           a.Self,
		})
	}

	return ev
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}
