package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"webrelay/internal/eventing"
	"webrelay/internal/relays/application/events"
)

const defaultCommandLogTable = "relay_command_log"

// LogEntry is one row of the relay command log.
type LogEntry struct {
	EventID     string
	CommandID   string
	Relay       int
	TargetState *bool
	Duration    *int
	Event       string
	Detail      string
	OccurredAt  time.Time
}

// CommandLogRepository appends relay lifecycle rows. It is write-only; the
// relay protocol never reads it back.
type CommandLogRepository struct {
	db    *sql.DB
	table string
}

// NewCommandLogRepository constructs a repository.
func NewCommandLogRepository(db *sql.DB) *CommandLogRepository {
	return &CommandLogRepository{db: db, table: defaultCommandLogTable}
}

// EnsureSchema creates the command log table when missing.
func (r *CommandLogRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("command log repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS relay_command_log (
	event_id TEXT PRIMARY KEY,
	command_id TEXT,
	relay INTEGER,
	target_state BOOLEAN,
	duration_ms INTEGER,
	event TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

// Append inserts a log row. Rows with an already stored event id are skipped.
func (r *CommandLogRepository) Append(ctx context.Context, entry LogEntry) error {
	if r == nil || r.db == nil {
		return errors.New("command log repo: nil db")
	}
	if entry.EventID == "" || entry.Event == "" {
		return errors.New("command log repo: invalid entry")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	var commandID sql.NullString
	if entry.CommandID != "" {
		commandID = sql.NullString{String: entry.CommandID, Valid: true}
	}
	var relay sql.NullInt64
	if entry.Relay > 0 {
		relay = sql.NullInt64{Int64: int64(entry.Relay), Valid: true}
	}
	var targetState sql.NullBool
	if entry.TargetState != nil {
		targetState = sql.NullBool{Bool: *entry.TargetState, Valid: true}
	}
	var duration sql.NullInt64
	if entry.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*entry.Duration), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO relay_command_log (
	event_id, command_id, relay, target_state, duration_ms, event, detail, occurred_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (event_id) DO NOTHING`, entry.EventID, commandID, relay, targetState, duration,
		entry.Event, entry.Detail, entry.OccurredAt)
	return err
}

// CommandLogConsumer writes relay lifecycle events to the command log.
type CommandLogConsumer struct {
	repo   *CommandLogRepository
	logger *log.Logger
}

// NewCommandLogConsumer constructs a consumer.
func NewCommandLogConsumer(repo *CommandLogRepository, logger *log.Logger) *CommandLogConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &CommandLogConsumer{repo: repo, logger: logger}
}

// Register subscribes the consumer to every relay lifecycle event.
func (c *CommandLogConsumer) Register(bus eventing.EventBus) {
	eventing.Subscribe(bus, eventing.EventTypeOf[events.CommandIssued](), "relay_command_log", c.Handle, c.logger)
	eventing.Subscribe(bus, eventing.EventTypeOf[events.CommandDelivered](), "relay_command_log", c.Handle, c.logger)
	eventing.Subscribe(bus, eventing.EventTypeOf[events.CommandAcked](), "relay_command_log", c.Handle, c.logger)
	eventing.Subscribe(bus, eventing.EventTypeOf[events.AckIgnored](), "relay_command_log", c.Handle, c.logger)
	eventing.Subscribe(bus, eventing.EventTypeOf[events.CommandExpired](), "relay_command_log", c.Handle, c.logger)
}

// Handle maps an event to a log row and appends it.
func (c *CommandLogConsumer) Handle(ctx context.Context, event any) error {
	entry, ok := EntryFor(event)
	if !ok {
		return nil
	}
	return c.repo.Append(ctx, entry)
}

// EntryFor converts a lifecycle event into a log row.
func EntryFor(event any) (LogEntry, bool) {
	switch evt := event.(type) {
	case events.CommandIssued:
		state := evt.TargetState
		entry := LogEntry{
			EventID:     evt.EventID,
			CommandID:   evt.CommandID,
			Relay:       evt.Relay,
			TargetState: &state,
			Duration:    evt.Duration,
			Event:       "issued",
			OccurredAt:  evt.OccurredAt,
		}
		if evt.ReplacedID != "" {
			entry.Detail = "replaced " + evt.ReplacedID
		}
		return entry, true
	case events.CommandDelivered:
		return LogEntry{
			EventID:    evt.EventID,
			CommandID:  evt.CommandID,
			Relay:      evt.Relay,
			Event:      "delivered",
			OccurredAt: evt.OccurredAt,
		}, true
	case events.CommandAcked:
		state := evt.TargetState
		return LogEntry{
			EventID:     evt.EventID,
			CommandID:   evt.CommandID,
			Relay:       evt.Relay,
			TargetState: &state,
			Event:       "acked",
			Detail:      evt.Status,
			OccurredAt:  evt.OccurredAt,
		}, true
	case events.AckIgnored:
		return LogEntry{
			EventID:    evt.EventID,
			CommandID:  evt.CommandID,
			Event:      "ack_ignored",
			Detail:     evt.Reason,
			OccurredAt: evt.OccurredAt,
		}, true
	case events.CommandExpired:
		state := evt.TargetState
		return LogEntry{
			EventID:     evt.EventID,
			CommandID:   evt.CommandID,
			Relay:       evt.Relay,
			TargetState: &state,
			Event:       "expired",
			OccurredAt:  evt.OccurredAt,
		}, true
	default:
		return LogEntry{}, false
	}
}
