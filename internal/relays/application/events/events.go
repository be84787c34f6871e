package events

import "time"

// CommandIssued is emitted when a command becomes the pending command.
type CommandIssued struct {
	EventID     string    `json:"event_id"`
	CommandID   string    `json:"command_id"`
	Relay       int       `json:"relay"`
	TargetState bool      `json:"target_state"`
	Duration    *int      `json:"duration,omitempty"`
	ReplacedID  string    `json:"replaced_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CommandDelivered is emitted when a poll hands the command to the device.
type CommandDelivered struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	Relay      int       `json:"relay"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandAcked is emitted when the device confirms a command.
type CommandAcked struct {
	EventID     string        `json:"event_id"`
	CommandID   string        `json:"command_id"`
	Relay       int           `json:"relay"`
	TargetState bool          `json:"target_state"`
	Status      string        `json:"status"`
	Latency     time.Duration `json:"latency"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// AckIgnored is emitted for acknowledgments that match no in-flight command.
type AckIgnored struct {
	EventID    string    `json:"event_id"`
	CommandID  string    `json:"command_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandExpired is emitted when the sweep drops an unacknowledged command.
type CommandExpired struct {
	EventID     string    `json:"event_id"`
	CommandID   string    `json:"command_id"`
	Relay       int       `json:"relay"`
	TargetState bool      `json:"target_state"`
	IssuedAt    time.Time `json:"issued_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}
