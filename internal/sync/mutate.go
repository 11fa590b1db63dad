package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/ozenc/takvim/internal/gcal"
)

// ErrEventNotFound means the target event is not in the engine's local
// state.
var ErrEventNotFound = errors.New("sync: event not found")

// ErrInvalidEvent means required fields are missing. Raised before any
// remote call.
var ErrInvalidEvent = errors.New("sync: invalid event")

// EventDraft carries the fields for a new event. CalendarID may be a
// local calendar id, a remote id, or empty (primary).
type EventDraft struct {
	CalendarID  string
	Title       string
	Description string
	Location    string
	Start       string
	End         string
	AllDay      bool
	TimeZone    string
	ColorID     string
}

// EventPatch carries a partial update. Nil fields are left unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *string
	End         *string
	AllDay      *bool
	TimeZone    *string
	ColorID     *string
}

// Create issues the remote insert and, on success, adds the server's
// canonical event to local state and invalidates the window cache. Create
// is not optimistic: nothing is shown until the insert is confirmed, so a
// failure leaves local state untouched.
func (e *Engine) Create(ctx context.Context, draft EventDraft) (*gcal.Event, error) {
	if draft.Title == "" || draft.Start == "" || draft.End == "" {
		return nil, fmt.Errorf("create: title, start, and end are required: %w", ErrInvalidEvent)
	}

	calendarID, err := e.resolveCalendar(ctx, draft.CalendarID)
	if err != nil {
		return nil, err
	}

	created, err := e.client.InsertEvent(ctx, calendarID, e.draftWrite(draft))
	if err != nil {
		return nil, fmt.Errorf("sync: create: %w", err)
	}

	e.mu.Lock()
	e.events = upsert(e.events, *created)
	sortEvents(e.events)
	e.invalidateCacheLocked()
	e.mu.Unlock()

	e.logger.Info("event created",
		slog.String("event_id", created.ID),
		slog.String("calendar_id", calendarID),
	)

	e.hub.Publish()

	return created, nil
}

// Update applies the patch to local state immediately, then confirms with
// the remote API. On success the local copy is reconciled with the
// server's canonical event; on failure the event's pre-mutation snapshot
// is restored exactly, not partially. Only the mutated event rolls back,
// so a concurrent mutation to a different event is never undone.
func (e *Engine) Update(ctx context.Context, eventID string, patch EventPatch) (*gcal.Event, error) {
	unlock := e.lockEvent(eventID)
	defer unlock()

	e.mu.Lock()

	idx := indexByID(e.events, eventID)
	if idx < 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("sync: update %s: %w", eventID, ErrEventNotFound)
	}

	snapshot := e.events[idx]
	merged := applyPatch(e.events[idx], patch)
	e.events[idx] = merged
	e.mu.Unlock()

	e.hub.Publish()

	write := e.eventWrite(merged, patch.TimeZone)

	calendarID, err := e.resolveCalendar(ctx, merged.CalendarID)
	if err != nil {
		e.restoreEvent(snapshot)
		return nil, err
	}

	canonical, err := e.client.PatchEvent(ctx, calendarID, eventID, write)
	if err != nil {
		e.restoreEvent(snapshot)
		return nil, fmt.Errorf("sync: update %s: %w", eventID, err)
	}

	e.mu.Lock()
	e.events = upsert(e.events, *canonical)
	sortEvents(e.events)
	e.invalidateCacheLocked()
	e.mu.Unlock()

	e.logger.Info("event updated", slog.String("event_id", eventID))
	e.hub.Publish()

	return canonical, nil
}

// Delete removes the event from local state immediately, then confirms
// with the remote API. An event that is already gone remotely (404/410)
// counts as success. On other failures the removed event is reinstated.
func (e *Engine) Delete(ctx context.Context, eventID string) error {
	unlock := e.lockEvent(eventID)
	defer unlock()

	e.mu.Lock()

	idx := indexByID(e.events, eventID)

	var (
		snapshot   gcal.Event
		removed    bool
		calendarID string
	)

	if idx >= 0 {
		snapshot = e.events[idx]
		removed = true
		calendarID = e.events[idx].CalendarID
		e.events = removeByID(e.events, eventID)
	}
	e.mu.Unlock()

	if removed {
		e.hub.Publish()
	}

	resolved, err := e.resolveCalendar(ctx, calendarID)
	if err != nil {
		if removed {
			e.restoreEvent(snapshot)
		}
		return err
	}

	if err := e.client.DeleteEvent(ctx, resolved, eventID); err != nil {
		if removed {
			e.restoreEvent(snapshot)
		}
		return fmt.Errorf("sync: delete %s: %w", eventID, err)
	}

	e.mu.Lock()
	e.invalidateCacheLocked()
	e.mu.Unlock()

	e.logger.Info("event deleted", slog.String("event_id", eventID))

	return nil
}

// restoreEvent puts one event's pre-mutation snapshot back, replacing the
// current copy or reinserting it when the mutation removed it. Scoped to a
// single event so concurrent mutations to other events survive a rollback.
func (e *Engine) restoreEvent(snapshot gcal.Event) {
	e.mu.Lock()

	if idx := indexByID(e.events, snapshot.ID); idx >= 0 {
		e.events[idx] = snapshot
	} else {
		e.events = append(e.events, snapshot)
		sortEvents(e.events)
	}
	e.mu.Unlock()

	e.hub.Publish()
}

// lockEvent serializes mutations per event id. Two rapid updates to the
// same event run one after the other, so their snapshot/rollback pairs
// cannot interleave.
func (e *Engine) lockEvent(eventID string) func() {
	e.locksMu.Lock()

	l, ok := e.eventLocks[eventID]
	if !ok {
		l = &stdsync.Mutex{}
		e.eventLocks[eventID] = l
	}
	e.locksMu.Unlock()

	l.Lock()

	return l.Unlock
}

// resolveCalendar maps a calendar identifier to the remote calendar id:
// a known local id resolves through the store, a known remote id passes
// through, and anything unresolved defaults to the primary calendar.
func (e *Engine) resolveCalendar(ctx context.Context, id string) (string, error) {
	if id == "" || id == primaryCalendarID {
		return primaryCalendarID, nil
	}

	remote, err := e.store.ResolveCalendarID(ctx, e.userID, id)
	if err != nil {
		return "", err
	}

	if remote != "" {
		return remote, nil
	}

	mappings, err := e.store.SelectedCalendars(ctx, e.userID)
	if err != nil {
		return "", err
	}

	for _, m := range mappings {
		if m.RemoteID == id {
			return id, nil
		}
	}

	return primaryCalendarID, nil
}

func (e *Engine) draftWrite(d EventDraft) gcal.EventWrite {
	tz := d.TimeZone
	if tz == "" {
		tz = e.timeZone
	}

	return gcal.EventWrite{
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Start:       d.Start,
		End:         d.End,
		AllDay:      d.AllDay,
		TimeZone:    tz,
		ColorID:     d.ColorID,
	}
}

// eventWrite builds the full write payload for a patched event. The write
// carries the merged post-patch values so the remote sees one consistent
// event, including explicit nulls when the timed/all-day shape changed.
func (e *Engine) eventWrite(ev gcal.Event, tz *string) gcal.EventWrite {
	zone := e.timeZone
	if tz != nil && *tz != "" {
		zone = *tz
	}

	return gcal.EventWrite{
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
		TimeZone:    zone,
		ColorID:     ev.ColorID,
	}
}

func applyPatch(ev gcal.Event, p EventPatch) gcal.Event {
	if p.Title != nil {
		ev.Title = *p.Title
	}

	if p.Description != nil {
		ev.Description = *p.Description
	}

	if p.Location != nil {
		ev.Location = *p.Location
	}

	if p.Start != nil {
		ev.Start = *p.Start
	}

	if p.End != nil {
		ev.End = *p.End
	}

	if p.AllDay != nil {
		ev.AllDay = *p.AllDay
	}

	if p.ColorID != nil {
		ev.ColorID = *p.ColorID
	}

	return ev
}

func indexByID(events []gcal.Event, id string) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}

	return -1
}
