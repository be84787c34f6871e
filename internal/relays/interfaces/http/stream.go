package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	relayapp "webrelay/internal/relays/application"
	relays "webrelay/internal/relays/domain"
)

// StateEvent is pushed to stream clients after every confirmed change.
type StateEvent struct {
	Change   relays.StateChange `json:"change"`
	Snapshot SnapshotResponse   `json:"snapshot"`
}

// SSEBroker fans out confirmed relay changes to connected clients.
type SSEBroker struct {
	service    *relayapp.Service
	relayCount int

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker. Register it with the service as an observer.
func NewSSEBroker(service *relayapp.Service, relayCount int) *SSEBroker {
	return &SSEBroker{
		service:    service,
		relayCount: relayCount,
		clients:    make(map[chan []byte]struct{}),
	}
}

// StateConfirmed implements notify.Observer.
func (b *SSEBroker) StateConfirmed(_ context.Context, change relays.StateChange) {
	if b == nil {
		return
	}
	event := StateEvent{Change: change, Snapshot: b.snapshot()}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.broadcast(payload)
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *SSEBroker) snapshot() SnapshotResponse {
	if b.service == nil {
		return SnapshotResponse{Relays: []RelayState{}}
	}
	return snapshotView(b.service.Snapshot(b.relayCount), b.relayCount)
}

// broadcast drops the payload for clients whose buffer is full. Sends never
// block, so the lock is held across them and Unsubscribe cannot close a
// channel mid-send.
func (b *SSEBroker) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// StreamHandler serves the SSE relay state stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/relays/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	ready, _ := json.Marshal(h.broker.snapshot())
	writeEvent(w, "ready", ready)
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "state", payload)
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload []byte) {
	_, _ = w.Write([]byte("event: " + name + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
