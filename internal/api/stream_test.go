package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozenc/takvim/internal/sync"
)

func TestStream_NotifiesOnPublish(t *testing.T) {
	engine := sync.NewEngine(&sync.EngineConfig{
		UserID: "ozenc",
		Client: &stubClient{},
		Store:  &stubStore{},
		Logger: slog.Default(),
	})

	srv := NewServer(Config{
		Engines:       &singleEngine{engine: engine},
		SessionSecret: testSecret,
		Logger:        slog.Default(),
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	token, err := IssueSession(testSecret, "ozenc", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.URL+"/calendar/stream", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	engine.Hub().Publish()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "events-changed", msg.Type)
	assert.NotEmpty(t, msg.At)
}

func TestStream_RequiresAuth(t *testing.T) {
	srv := NewServer(Config{SessionSecret: testSecret, Logger: slog.Default()})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, ts.URL+"/calendar/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
