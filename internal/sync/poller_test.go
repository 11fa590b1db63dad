package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozenc/takvim/internal/gcal"
)

func TestPoller_RunOnceUsesLastWindow(t *testing.T) {
	var sawWindow gcal.ListQuery

	client := &fakeClient{}
	client.listFunc = func(_ context.Context, _ string, q gcal.ListQuery) (*gcal.EventPage, error) {
		sawWindow = q
		return &gcal.EventPage{}, nil
	}

	engine := newTestEngine(t, client, newFakeStore())

	// A foreground fetch pins the window the poller should reuse.
	win := testWindow()
	_, err := engine.Events(context.Background(), win)
	require.NoError(t, err)

	p := NewPoller(engine, time.Minute, time.Second, testLogger(t))
	p.runOnce(context.Background())

	assert.True(t, sawWindow.TimeMin.Equal(win.Min))
	assert.True(t, sawWindow.TimeMax.Equal(win.Max))
}

func TestPoller_RunOnceFallsBackToDefaultWindow(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, newFakeStore())

	p := NewPoller(engine, time.Minute, time.Second, testLogger(t))
	p.defaultWindow = func() Window {
		return Window{
			Min: time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
			Max: time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC),
		}
	}

	p.runOnce(context.Background())

	assert.Equal(t, 1, client.totalListCalls())
}

// A failed background poll is swallowed: the poller logs and moves on.
func TestPoller_RunOnceSwallowsErrors(t *testing.T) {
	client := &fakeClient{listErr: errors.New("offline")}
	engine := newTestEngine(t, client, newFakeStore())

	p := NewPoller(engine, time.Minute, time.Second, testLogger(t))

	assert.NotPanics(t, func() {
		p.runOnce(context.Background())
	})
}

func TestPoller_Defaults(t *testing.T) {
	p := NewPoller(nil, 0, 0, nil)

	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, DefaultInitialDelay, p.initialDelay)
}

func TestPoller_StartStop(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, newFakeStore())

	p := NewPoller(engine, time.Hour, time.Hour, testLogger(t))
	p.Start(context.Background())
	p.Stop()
}

func TestMonthAround(t *testing.T) {
	win := monthAround()

	assert.False(t, win.IsZero())
	assert.Equal(t, 42, int(win.Max.Sub(win.Min).Hours()/24))
}
