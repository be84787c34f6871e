package relays

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidRelay indicates a relay number outside the configured range.
	ErrInvalidRelay = errors.New("relays: invalid relay")
	// ErrInvalidDuration indicates a negative hold duration.
	ErrInvalidDuration = errors.New("relays: invalid duration")
)

// Relay identifies a binary output on the device, starting at 1.
type Relay int

// Valid reports whether the relay is within 1..count.
func (r Relay) Valid(count int) bool {
	return r >= 1 && int(r) <= count
}

// Field returns the wire field name for the relay, e.g. "relay1".
func (r Relay) Field() string {
	return "relay" + strconv.Itoa(int(r))
}

// ParseField parses a "relayN" wire field name.
func ParseField(field string) (Relay, bool) {
	if !strings.HasPrefix(field, "relay") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(field, "relay"))
	if err != nil || n < 1 {
		return 0, false
	}
	return Relay(n), true
}

// StateChange describes a confirmed relay transition.
type StateChange struct {
	Relay       Relay     `json:"relay"`
	State       bool      `json:"state"`
	CommandID   string    `json:"command_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// StateLabel renders a state as ON/OFF.
func StateLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
