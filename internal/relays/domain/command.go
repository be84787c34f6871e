package relays

import "time"

const (
	StatusPending     = "pending"
	StatusDelivered   = "delivered"
	StatusAcked       = "acked"
	StatusOverwritten = "overwritten"
	StatusExpired     = "expired"
)

// Command asks the device to drive one relay to a target state.
type Command struct {
	ID          string
	Relay       Relay
	TargetState bool
	// Duration is a hold time in milliseconds passed through to the device.
	Duration *int
	IssuedAt time.Time
}

// InFlight is the bookkeeping kept for a command until it is acknowledged.
type InFlight struct {
	CommandID   string
	Relay       Relay
	TargetState bool
	IssuedAt    time.Time
}

// InFlightOf derives the in-flight entry for a command.
func InFlightOf(cmd Command) InFlight {
	return InFlight{
		CommandID:   cmd.ID,
		Relay:       cmd.Relay,
		TargetState: cmd.TargetState,
		IssuedAt:    cmd.IssuedAt,
	}
}

// WireState encodes the target state as the device expects it.
func (c Command) WireState() int {
	if c.TargetState {
		return 1
	}
	return 0
}
