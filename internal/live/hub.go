// Package live implements the fan-out hub that pushes file change
// notifications to connected editors over Server-Sent Events.
package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// EventTypeFileChanged is the only event type the hub currently carries.
const EventTypeFileChanged = "file_changed"

// Event is the payload delivered to subscribers. Content is present only
// when the changed document could be re-read; a pointer distinguishes
// "no content" from a legitimately empty file.
type Event struct {
	Type    string  `json:"type"`
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

// FileChanged builds a change event. content may be nil.
func FileChanged(path string, content *string) Event {
	return Event{Type: EventTypeFileChanged, Path: path, Content: content}
}

// Hub manages subscriber connections and broadcasts change events.
//
// Concurrency model: a single internal event loop (goroutine) owns the
// subscriber set. Public methods communicate with this loop through
// channels, so no mutexes are required. Subscribers that stop draining
// their buffer are pruned during the broadcast sweep rather than blocked
// on.
type Hub struct {
	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	broadcastCh   chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewHub creates a hub and starts its event loop.
func NewHub() *Hub {
	h := &Hub{
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		broadcastCh:   make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	clients := make(map[chan []byte]struct{})

	broadcast := func(event Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		var stale []chan []byte
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Buffer full: client stopped reading. Collect it and
				// drop it after the sweep.
				stale = append(stale, ch)
			}
		}
		for _, ch := range stale {
			delete(clients, ch)
			close(ch)
		}
	}

	for {
		select {
		case <-h.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-h.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-h.broadcastCh:
			broadcast(event)

		case resp := <-h.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all subscriber channels.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Subscribe adds a new subscriber and returns its channel.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if h.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing
// a channel that was already pruned is a no-op.
func (h *Hub) Unsubscribe(ch chan []byte) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Broadcast delivers an event to every subscriber.
func (h *Hub) Broadcast(event Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.broadcastCh <- event:
	case <-h.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
