// Package sync implements the calendar synchronization engine: full and
// delta fetches across the user's selected calendars, a freshness cache
// keyed by time window, cursor management with expired-token fallback, and
// optimistic mutations with rollback.
package sync

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ozenc/takvim/internal/gcal"
	"github.com/ozenc/takvim/internal/store"
)

// cacheTTL is how long a fetched window stays fresh. A full-sync request
// for a window cached more recently than this returns the cached events
// without a remote call.
const cacheTTL = 5 * time.Minute

// primaryCalendarID is the well-known sentinel for the user's default
// calendar, used when a local calendar id cannot be resolved.
const primaryCalendarID = "primary"

// statusCancelled is the remote status of a deleted event in a delta page.
const statusCancelled = "cancelled"

// State is the engine's sync lifecycle state.
type State int

const (
	Idle State = iota
	FullSyncInFlight
	DeltaSyncInFlight
	TokenExpired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FullSyncInFlight:
		return "full-sync"
	case DeltaSyncInFlight:
		return "delta-sync"
	case TokenExpired:
		return "token-expired"
	default:
		return "unknown"
	}
}

// Window is an absolute [Min, Max) time range of interest.
type Window struct {
	Min time.Time
	Max time.Time
}

func (w Window) key() string {
	return w.Min.UTC().Format(time.RFC3339) + "|" + w.Max.UTC().Format(time.RFC3339)
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Min.IsZero() && w.Max.IsZero()
}

// EventClient is the slice of the Calendar API client the engine consumes.
// Satisfied by *gcal.Client.
type EventClient interface {
	ListEvents(ctx context.Context, calendarID string, q gcal.ListQuery) (*gcal.EventPage, error)
	InsertEvent(ctx context.Context, calendarID string, w gcal.EventWrite) (*gcal.Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, w gcal.EventWrite) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// CursorStore is the slice of the store the engine consumes.
// Satisfied by *store.Store.
type CursorStore interface {
	Cursor(ctx context.Context, userID, calendarID string) (string, error)
	SaveCursor(ctx context.Context, userID, calendarID, token, timeMin, timeMax string) error
	DeleteCursor(ctx context.Context, userID, calendarID string) error
	ResolveCalendarID(ctx context.Context, userID, localID string) (string, error)
	SelectedCalendars(ctx context.Context, userID string) ([]store.CalendarMapping, error)
}

type cacheEntry struct {
	events    []gcal.Event
	fetchedAt time.Time
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	UserID          string
	Client          EventClient
	Store           CursorStore
	DefaultTimeZone string // IANA zone paired with wall-clock writes
	Logger          *slog.Logger
}

// Engine owns the in-memory event list and window cache for one user.
// All remote state flows through it; there is no package-level state, and
// Reset tears everything down on logout.
type Engine struct {
	userID   string
	client   EventClient
	store    CursorStore
	timeZone string
	logger   *slog.Logger
	hub      *Hub
	now      func() time.Time

	mu         stdsync.Mutex
	state      State
	events     []gcal.Event
	cache      map[string]cacheEntry
	lastWindow Window

	// gens holds a generation counter per window key. A fetch records the
	// generation it started under and discards its result if a newer fetch
	// for the same window has started since — a stale response must not
	// overwrite a newer one.
	gens map[string]uint64

	// eventLocks serializes mutations per event id, so two rapid updates
	// to the same event cannot interleave their snapshot/rollback pairs.
	locksMu    stdsync.Mutex
	eventLocks map[string]*stdsync.Mutex
}

// NewEngine creates an Engine.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		userID:     cfg.UserID,
		client:     cfg.Client,
		store:      cfg.Store,
		timeZone:   cfg.DefaultTimeZone,
		logger:     logger,
		hub:        NewHub(),
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
		gens:       make(map[string]uint64),
		eventLocks: make(map[string]*stdsync.Mutex),
	}
}

// Hub exposes the change-notification hub for websocket subscribers.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// State returns the current sync lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// LastWindow returns the most recently requested window, for background
// polling. Zero until the first Events call.
func (e *Engine) LastWindow() Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastWindow
}

// Reset clears all engine state: events, window cache, generations, and
// the persisted cursors for the user's calendars. Called on logout.
func (e *Engine) Reset(ctx context.Context) error {
	calendars, err := e.selectedCalendars(ctx)
	if err != nil {
		return err
	}

	for _, cal := range calendars {
		if err := e.store.DeleteCursor(ctx, e.userID, cal); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.events = nil
	e.cache = make(map[string]cacheEntry)
	e.gens = make(map[string]uint64)
	e.state = Idle
	e.mu.Unlock()

	e.logger.Info("engine state cleared", slog.String("user_id", e.userID))
	e.hub.Publish()

	return nil
}

// Events returns the events for a window, performing a full sync unless a
// fresh cache entry exists. This is the foreground read path.
func (e *Engine) Events(ctx context.Context, win Window) ([]gcal.Event, error) {
	e.mu.Lock()
	e.lastWindow = win

	if entry, ok := e.cache[win.key()]; ok && e.now().Sub(entry.fetchedAt) < cacheTTL {
		events := append([]gcal.Event(nil), entry.events...)
		e.mu.Unlock()

		e.logger.Debug("serving window from cache",
			slog.String("window", win.key()),
			slog.Int("events", len(events)),
		)

		return events, nil
	}
	e.mu.Unlock()

	return e.FullSync(ctx, win)
}

// FullSync fetches all events in the window for every selected calendar,
// replaces the window's cache entry, and captures fresh sync cursors.
// Fetches across calendars run concurrently; results are merged before
// publication so a reader never observes a partial-calendar update.
func (e *Engine) FullSync(ctx context.Context, win Window) ([]gcal.Event, error) {
	calendars, err := e.selectedCalendars(ctx)
	if err != nil {
		return nil, err
	}

	gen := e.beginFetch(win)

	e.logger.Info("full sync starting",
		slog.String("window", win.key()),
		slog.Int("calendars", len(calendars)),
	)

	pages := make([]*gcal.EventPage, len(calendars))

	g, gctx := errgroup.WithContext(ctx)

	for i, cal := range calendars {
		g.Go(func() error {
			page, listErr := e.client.ListEvents(gctx, cal, gcal.ListQuery{TimeMin: win.Min, TimeMax: win.Max})
			if listErr != nil {
				return listErr
			}

			pages[i] = page

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.setState(Idle)
		return nil, fmt.Errorf("sync: full sync: %w", err)
	}

	var merged []gcal.Event

	tokens := make(map[string]string)

	for i, page := range pages {
		merged = append(merged, page.Events...)

		if page.NextSyncToken != "" {
			tokens[calendars[i]] = page.NextSyncToken
		}
	}

	sortEvents(merged)

	// Cursors persist only for the winning fetch: a superseded sync must
	// not overwrite the newer fetch's tokens any more than its events.
	if !e.commitFull(win, gen, merged) {
		e.logger.Warn("discarding stale full sync result",
			slog.String("window", win.key()),
			slog.Uint64("generation", gen),
		)

		return merged, nil
	}

	for cal, token := range tokens {
		if err := e.saveCursor(ctx, cal, token, win); err != nil {
			return nil, err
		}
	}

	e.logger.Info("full sync complete",
		slog.String("window", win.key()),
		slog.Int("events", len(merged)),
	)

	e.hub.Publish()

	return merged, nil
}

// DeltaSync fetches only changed events since each calendar's cursor and
// merges them into the event list. Calendars without a cursor are skipped.
// An expired cursor (HTTP 410) is discarded and the engine falls back to a
// full sync for the window.
func (e *Engine) DeltaSync(ctx context.Context, win Window) ([]gcal.Event, error) {
	calendars, err := e.selectedCalendars(ctx)
	if err != nil {
		return nil, err
	}

	e.setState(DeltaSyncInFlight)

	var withCursor []string

	cursors := make(map[string]string)

	for _, cal := range calendars {
		cursor, err := e.store.Cursor(ctx, e.userID, cal)
		if err != nil {
			e.setState(Idle)
			return nil, err
		}

		if cursor == "" {
			continue
		}

		withCursor = append(withCursor, cal)
		cursors[cal] = cursor
	}

	// Fetches fan out like the full path; merging waits for all of them so
	// a reader never observes a partial-calendar update.
	pages := make([]*gcal.EventPage, len(withCursor))

	var (
		expiredMu stdsync.Mutex
		expired   []string
	)

	g, gctx := errgroup.WithContext(ctx)

	for i, cal := range withCursor {
		g.Go(func() error {
			page, listErr := e.client.ListEvents(gctx, cal, gcal.ListQuery{SyncToken: cursors[cal]})
			if errors.Is(listErr, gcal.ErrGone) {
				expiredMu.Lock()
				expired = append(expired, cal)
				expiredMu.Unlock()

				return nil
			}

			if listErr != nil {
				return listErr
			}

			pages[i] = page

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.setState(Idle)
		return nil, fmt.Errorf("sync: delta sync: %w", err)
	}

	if len(expired) > 0 {
		for _, cal := range expired {
			e.logger.Info("sync token expired, falling back to full sync",
				slog.String("calendar_id", cal),
			)

			if delErr := e.store.DeleteCursor(ctx, e.userID, cal); delErr != nil {
				e.setState(Idle)
				return nil, delErr
			}
		}

		e.setState(TokenExpired)

		return e.FullSync(ctx, win)
	}

	e.mu.Lock()

	changed := 0
	for _, page := range pages {
		changed += len(page.Events)
		e.events = mergeDelta(e.events, page.Events)
	}

	sortEvents(e.events)
	e.state = Idle
	events := append([]gcal.Event(nil), e.events...)
	e.mu.Unlock()

	for i, page := range pages {
		if page.NextSyncToken == "" {
			continue
		}

		if err := e.saveCursor(ctx, withCursor[i], page.NextSyncToken, win); err != nil {
			return nil, err
		}
	}

	e.logger.Info("delta sync complete",
		slog.Int("calendars", len(withCursor)),
		slog.Int("changed", changed),
	)

	if changed > 0 {
		e.hub.Publish()
	}

	return events, nil
}

// SyncNow runs a delta sync when any cursor exists, otherwise a full sync.
// Used by the background poller.
func (e *Engine) SyncNow(ctx context.Context, win Window) error {
	calendars, err := e.selectedCalendars(ctx)
	if err != nil {
		return err
	}

	for _, cal := range calendars {
		cursor, err := e.store.Cursor(ctx, e.userID, cal)
		if err != nil {
			return err
		}

		if cursor != "" {
			_, err = e.DeltaSync(ctx, win)
			return err
		}
	}

	_, err = e.FullSync(ctx, win)

	return err
}

// DeltaToken returns an opaque token a client can send back to request a
// delta read instead of a full window fetch. It is non-empty once every
// selected calendar has a saved cursor and changes whenever any cursor
// advances. Per-calendar cursors themselves stay engine-managed; the
// token only fingerprints their state as a whole.
func (e *Engine) DeltaToken(ctx context.Context) (string, error) {
	calendars, err := e.selectedCalendars(ctx)
	if err != nil {
		return "", err
	}

	h := fnv.New64a()

	for _, cal := range calendars {
		cursor, err := e.store.Cursor(ctx, e.userID, cal)
		if err != nil {
			return "", err
		}

		if cursor == "" {
			return "", nil
		}

		h.Write([]byte(cal))
		h.Write([]byte{0})
		h.Write([]byte(cursor))
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// selectedCalendars resolves the user's selected calendars to remote ids,
// defaulting to the primary calendar when none are configured.
func (e *Engine) selectedCalendars(ctx context.Context) ([]string, error) {
	mappings, err := e.store.SelectedCalendars(ctx, e.userID)
	if err != nil {
		return nil, err
	}

	if len(mappings) == 0 {
		return []string{primaryCalendarID}, nil
	}

	out := make([]string, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m.RemoteID)
	}

	return out, nil
}

func (e *Engine) saveCursor(ctx context.Context, calendarID, token string, win Window) error {
	return e.store.SaveCursor(ctx, e.userID, calendarID, token,
		win.Min.UTC().Format(time.RFC3339), win.Max.UTC().Format(time.RFC3339))
}

// beginFetch bumps the window's generation and marks a full sync in
// flight, returning the generation this fetch runs under.
func (e *Engine) beginFetch(win Window) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gens[win.key()]++
	e.state = FullSyncInFlight

	return e.gens[win.key()]
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// commitFull installs a full sync result unless a newer fetch for the same
// window has started since. Reports whether the result was installed.
func (e *Engine) commitFull(win Window, gen uint64, events []gcal.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Idle

	if e.gens[win.key()] != gen {
		return false
	}

	e.events = append([]gcal.Event(nil), events...)
	e.cache[win.key()] = cacheEntry{
		events:    append([]gcal.Event(nil), events...),
		fetchedAt: e.now(),
	}

	return true
}

// invalidateCacheLocked drops every cache entry. A successful mutation may
// affect any cached window, so invalidation is wholesale. Callers must
// hold e.mu.
func (e *Engine) invalidateCacheLocked() {
	e.cache = make(map[string]cacheEntry)
}

// mergeDelta applies one calendar's delta page to the event list: events
// whose status is cancelled are removed by id, everything else is upserted
// (replaced in place when the id exists, appended otherwise).
func mergeDelta(events, changes []gcal.Event) []gcal.Event {
	for _, ch := range changes {
		if ch.Status == statusCancelled {
			events = removeByID(events, ch.ID)
			continue
		}

		events = upsert(events, ch)
	}

	return events
}

func removeByID(events []gcal.Event, id string) []gcal.Event {
	for i := range events {
		if events[i].ID == id {
			return append(events[:i:i], events[i+1:]...)
		}
	}

	return events
}

func upsert(events []gcal.Event, ev gcal.Event) []gcal.Event {
	for i := range events {
		if events[i].ID == ev.ID {
			events[i] = ev
			return events
		}
	}

	return append(events, ev)
}

// sortEvents orders events ascending by start. Date-only and wall-clock
// strings for the same day compare consistently under lexicographic order.
func sortEvents(events []gcal.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return strings.Compare(events[i].Start, events[j].Start) < 0
	})
}
