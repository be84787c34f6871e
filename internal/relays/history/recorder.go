package history

import (
	"context"
	"sync"
	"time"

	"webrelay/internal/eventing"
	"webrelay/internal/relays/application/events"
	relays "webrelay/internal/relays/domain"
)

const DefaultCapacity = 200

// Record is the lifecycle of one command as seen by the server.
type Record struct {
	CommandID   string     `json:"command_id"`
	Relay       int        `json:"relay"`
	TargetState bool       `json:"target_state"`
	Duration    *int       `json:"duration,omitempty"`
	Status      string     `json:"status"`
	AckStatus   string     `json:"ack_status,omitempty"`
	ReplacedBy  string     `json:"replaced_by,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	AckedAt     *time.Time `json:"acked_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

// Recorder keeps the most recent command records in memory. Oldest records
// are evicted once capacity is reached.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	order    []string
	records  map[string]*Record
	ignored  int
}

// NewRecorder constructs a recorder; non-positive capacity uses the default.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		records:  make(map[string]*Record, capacity),
	}
}

// Register subscribes the recorder to relay lifecycle events.
func (r *Recorder) Register(bus eventing.EventBus) {
	bus.Subscribe(eventing.EventTypeOf[events.CommandIssued](), r.Handle)
	bus.Subscribe(eventing.EventTypeOf[events.CommandDelivered](), r.Handle)
	bus.Subscribe(eventing.EventTypeOf[events.CommandAcked](), r.Handle)
	bus.Subscribe(eventing.EventTypeOf[events.AckIgnored](), r.Handle)
	bus.Subscribe(eventing.EventTypeOf[events.CommandExpired](), r.Handle)
}

// Handle applies one lifecycle event.
func (r *Recorder) Handle(_ context.Context, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt := event.(type) {
	case events.CommandIssued:
		if evt.ReplacedID != "" {
			if prev, ok := r.records[evt.ReplacedID]; ok && prev.Status == relays.StatusPending {
				prev.Status = relays.StatusOverwritten
				prev.ReplacedBy = evt.CommandID
			}
		}
		rec := r.recordLocked(evt.CommandID, evt.Relay)
		rec.Relay = evt.Relay
		rec.TargetState = evt.TargetState
		rec.Duration = evt.Duration
		rec.IssuedAt = evt.OccurredAt
	case events.CommandDelivered:
		rec := r.recordLocked(evt.CommandID, evt.Relay)
		at := evt.OccurredAt
		rec.DeliveredAt = &at
		if rec.Status == relays.StatusPending {
			rec.Status = relays.StatusDelivered
		}
	case events.CommandAcked:
		rec := r.recordLocked(evt.CommandID, evt.Relay)
		at := evt.OccurredAt
		rec.AckedAt = &at
		rec.AckStatus = evt.Status
		rec.TargetState = evt.TargetState
		rec.Status = relays.StatusAcked
	case events.CommandExpired:
		if rec, ok := r.records[evt.CommandID]; ok {
			at := evt.OccurredAt
			rec.ExpiredAt = &at
			rec.Status = relays.StatusExpired
		}
	case events.AckIgnored:
		r.ignored++
	}
	return nil
}

// List returns records newest first, at most limit when limit > 0.
func (r *Recorder) List(limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *r.records[r.order[i]])
	}
	return out
}

// IgnoredAcks returns how many acknowledgments matched no in-flight command.
func (r *Recorder) IgnoredAcks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ignored
}

// recordLocked returns the record for id, creating a pending one when a later
// lifecycle event arrives before CommandIssued.
func (r *Recorder) recordLocked(id string, relay int) *Record {
	if rec, ok := r.records[id]; ok {
		return rec
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.records, oldest)
	}
	rec := &Record{CommandID: id, Relay: relay, Status: relays.StatusPending}
	r.order = append(r.order, id)
	r.records[id] = rec
	return rec
}
