package sync

import stdsync "sync"

// Hub fans out change notifications to subscribers. The engine publishes
// after every merged update or mutation; subscribers (the websocket
// stream, tests) re-read state when notified. Notifications are
// best-effort edge triggers: a slow subscriber coalesces bursts into one
// pending signal rather than blocking the engine.
type Hub struct {
	mu   stdsync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the subscription.
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++

	ch := make(chan struct{}, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.subs, id)
	}

	return ch, cancel
}

// Publish signals every subscriber without blocking.
func (h *Hub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
