package application

import (
	"context"
	"errors"
	"log"
	"time"

	"webrelay/internal/eventing"
	"webrelay/internal/observability/metrics"
	"webrelay/internal/relays/application/events"
	relays "webrelay/internal/relays/domain"
	"webrelay/internal/relays/infrastructure/memory"
	"webrelay/internal/relays/notify"
)

// AckResult classifies how an acknowledgment was handled.
type AckResult string

const (
	// AckApplied means the id was in-flight and its state is now confirmed.
	AckApplied AckResult = "applied"
	// AckUnknown means the id was not in-flight (stale, duplicate or expired).
	AckUnknown AckResult = "unknown"
	// AckIgnored means the acknowledgment carried no usable id.
	AckIgnored AckResult = "ignored"
)

const maxIDAttempts = 8

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Snapshot is a point-in-time view for control surfaces.
type Snapshot struct {
	States    map[relays.Relay]bool
	InFlight  int
	PendingID string
}

// Service issues relay commands, serves polls and applies acknowledgments.
type Service struct {
	store     *memory.CommandStore
	notifier  *notify.Notifier
	publisher eventing.Publisher
	logger    *log.Logger
	clock     Clock
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes lifecycle events to the bus.
func WithPublisher(publisher eventing.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides command id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a relay command service.
func NewService(store *memory.CommandStore, notifier *notify.Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("relays: nil store")
	}
	if notifier == nil {
		return nil, errors.New("relays: nil notifier")
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		logger:   log.Default(),
		clock:    systemClock{},
		newID:    NewCommandID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueOption customises an issued command.
type IssueOption func(*relays.Command)

// WithDuration attaches a hold duration in milliseconds. Non-positive values
// are left off the wire.
func WithDuration(ms int) IssueOption {
	return func(cmd *relays.Command) {
		if ms > 0 {
			value := ms
			cmd.Duration = &value
		}
	}
}

// Issue queues a command for relay and returns it. Any command not yet
// polled is replaced but stays acknowledgeable.
func (s *Service) Issue(ctx context.Context, relay relays.Relay, on bool, opts ...IssueOption) relays.Command {
	cmd := relays.Command{
		ID:          s.uniqueID(),
		Relay:       relay,
		TargetState: on,
		IssuedAt:    s.clock.Now(),
	}
	for _, opt := range opts {
		opt(&cmd)
	}

	replaced, hadPending := s.store.SetPending(cmd)
	metrics.IncCommandIssued(int(relay))
	metrics.SetInFlight(s.store.InFlight())

	event := events.CommandIssued{
		EventID:     eventing.NewEventID(),
		CommandID:   cmd.ID,
		Relay:       int(relay),
		TargetState: on,
		Duration:    cmd.Duration,
		OccurredAt:  cmd.IssuedAt,
	}
	if hadPending {
		metrics.IncPendingOverwritten()
		event.ReplacedID = replaced.ID
		s.logger.Printf("relay command overwritten: command=%s relay=%d by=%s", replaced.ID, replaced.Relay, cmd.ID)
	}
	s.logger.Printf("relay command issued: command=%s relay=%d state=%s", cmd.ID, relay, relays.StateLabel(on))
	s.publish(ctx, event.EventID, event)
	return cmd
}

// Poll hands the pending command to the device, at most once. It never blocks.
func (s *Service) Poll(ctx context.Context) (relays.Command, bool) {
	cmd, ok := s.store.TakePending()
	metrics.ObservePoll(ok)
	if !ok {
		return relays.Command{}, false
	}
	s.logger.Printf("relay command delivered: command=%s relay=%d", cmd.ID, cmd.Relay)
	event := events.CommandDelivered{
		EventID:    eventing.NewEventID(),
		CommandID:  cmd.ID,
		Relay:      int(cmd.Relay),
		OccurredAt: s.clock.Now(),
	}
	s.publish(ctx, event.EventID, event)
	return cmd, true
}

// Acknowledge applies the state of an in-flight command reported by the
// device. Unknown or empty ids change nothing; no error is returned either way.
func (s *Service) Acknowledge(ctx context.Context, id, status string) AckResult {
	now := s.clock.Now()
	if id == "" {
		metrics.IncAck(metrics.AckResultIgnored)
		s.logger.Printf("relay ack ignored: empty command id status=%q", status)
		event := events.AckIgnored{EventID: eventing.NewEventID(), Status: status, Reason: "empty command id", OccurredAt: now}
		s.publish(ctx, event.EventID, event)
		return AckIgnored
	}

	entry, ok := s.store.ConfirmWith(id, func(applied relays.InFlight) {
		metrics.SetConfirmedState(int(applied.Relay), applied.TargetState)
	})
	if !ok {
		metrics.IncAck(metrics.AckResultUnknown)
		s.logger.Printf("relay ack unknown: command=%s status=%q", id, status)
		event := events.AckIgnored{EventID: eventing.NewEventID(), CommandID: id, Status: status, Reason: "not in flight", OccurredAt: now}
		s.publish(ctx, event.EventID, event)
		return AckUnknown
	}

	latency := now.Sub(entry.IssuedAt)
	metrics.IncAck(metrics.AckResultAcked)
	metrics.ObserveAckLatency(latency)
	metrics.SetInFlight(s.store.InFlight())
	s.logger.Printf("relay command acknowledged: command=%s relay=%d state=%s status=%q", id, entry.Relay, relays.StateLabel(entry.TargetState), status)

	s.notifier.Notify(ctx, relays.StateChange{
		Relay:       entry.Relay,
		State:       entry.TargetState,
		CommandID:   id,
		ConfirmedAt: now,
	})

	event := events.CommandAcked{
		EventID:     eventing.NewEventID(),
		CommandID:   id,
		Relay:       int(entry.Relay),
		TargetState: entry.TargetState,
		Status:      status,
		Latency:     latency,
		OccurredAt:  now,
	}
	s.publish(ctx, event.EventID, event)
	return AckApplied
}

// ConfirmedState returns the last device-confirmed state of relay.
func (s *Service) ConfirmedState(relay relays.Relay) bool {
	return s.store.State(relay)
}

// ConfirmedStates returns confirmed states for relays 1..count.
func (s *Service) ConfirmedStates(count int) map[relays.Relay]bool {
	known := s.store.States()
	out := make(map[relays.Relay]bool, count)
	for i := 1; i <= count; i++ {
		out[relays.Relay(i)] = known[relays.Relay(i)]
	}
	return out
}

// Snapshot returns confirmed states for relays 1..count plus queue counters.
func (s *Service) Snapshot(count int) Snapshot {
	snap := Snapshot{
		States:   s.ConfirmedStates(count),
		InFlight: s.store.InFlight(),
	}
	if cmd, ok := s.store.Pending(); ok {
		snap.PendingID = cmd.ID
	}
	return snap
}

// Subscribe registers an observer of confirmed changes.
func (s *Service) Subscribe(observer notify.Observer) func() {
	return s.notifier.Subscribe(observer)
}

// ExpireInFlight drops in-flight commands older than ttl and returns how many
// were dropped. A later acknowledgment for a dropped id is treated as unknown.
func (s *Service) ExpireInFlight(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	now := s.clock.Now()
	expired := s.store.ExpireBefore(now.Add(-ttl))
	if len(expired) == 0 {
		return 0
	}
	metrics.AddCommandsExpired(len(expired))
	metrics.SetInFlight(s.store.InFlight())
	for _, entry := range expired {
		s.logger.Printf("relay command expired: command=%s relay=%d issued_at=%s", entry.CommandID, entry.Relay, entry.IssuedAt.Format(time.RFC3339))
		event := events.CommandExpired{
			EventID:     eventing.NewEventID(),
			CommandID:   entry.CommandID,
			Relay:       int(entry.Relay),
			TargetState: entry.TargetState,
			IssuedAt:    entry.IssuedAt,
			OccurredAt:  now,
		}
		s.publish(ctx, event.EventID, event)
	}
	return len(expired)
}

// RunExpiry sweeps expired in-flight commands every interval until ctx ends.
func (s *Service) RunExpiry(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireInFlight(ctx, ttl)
		}
	}
}

func (s *Service) uniqueID() string {
	id := s.newID()
	for attempt := 1; attempt < maxIDAttempts && s.store.Has(id); attempt++ {
		s.logger.Printf("relay command id collision: id=%s attempt=%d", id, attempt)
		id = s.newID()
	}
	return id
}

// publish hands the event to the bus. Errors are logged; the protocol
// outcome never depends on event consumers.
func (s *Service) publish(ctx context.Context, eventID string, event any) {
	if s.publisher == nil {
		return
	}
	ctx = eventing.WithEventID(ctx, eventID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("relay event publish error: event=%s err=%v", eventing.EventType(event), err)
	}
}
