package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// streamMessage is pushed to websocket subscribers after each merged
// engine update. Clients re-fetch the window on receipt; the message
// itself carries no event data.
type streamMessage struct {
	Type string `json:"type"`
	At   string `json:"at"`
}

// handleStream upgrades to a websocket and forwards engine change
// notifications until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	defer conn.Close(websocket.StatusNormalClosure, "")

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	notify, cancel := engine.Hub().Subscribe()
	defer cancel()

	s.logger.Debug("stream subscriber connected")

	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			if err := writeStreamMessage(ctx, conn); err != nil {
				s.logger.Debug("stream write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(streamMessage{
		Type: "events-changed",
		At:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
