package memory

import (
	"sort"
	"sync"
	"time"

	relays "webrelay/internal/relays/domain"
)

// CommandStore holds the pending command slot, the in-flight index and the
// confirmed relay states behind a single mutex.
type CommandStore struct {
	mu       sync.Mutex
	pending  *relays.Command
	inFlight map[string]relays.InFlight
	states   map[relays.Relay]bool
}

// NewCommandStore constructs an empty store.
func NewCommandStore() *CommandStore {
	return &CommandStore{
		inFlight: make(map[string]relays.InFlight),
		states:   make(map[relays.Relay]bool),
	}
}

// SetPending replaces the pending slot and records the command as in-flight.
// The replaced command, if any, is returned; its in-flight entry is kept.
func (s *CommandStore) SetPending(cmd relays.Command) (relays.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replaced relays.Command
	hadPending := s.pending != nil
	if hadPending {
		replaced = *s.pending
	}
	next := cmd
	s.pending = &next
	s.inFlight[cmd.ID] = relays.InFlightOf(cmd)
	return replaced, hadPending
}

// TakePending reads and clears the pending slot.
func (s *CommandStore) TakePending() (relays.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return relays.Command{}, false
	}
	cmd := *s.pending
	s.pending = nil
	return cmd, true
}

// Pending returns the pending command without clearing it.
func (s *CommandStore) Pending() (relays.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return relays.Command{}, false
	}
	return *s.pending, true
}

// Has reports whether id is currently in-flight.
func (s *CommandStore) Has(id string) bool {
	s.mu.Lock()
	_, ok := s.inFlight[id]
	s.mu.Unlock()
	return ok
}

// Resolve removes and returns the in-flight entry for id.
func (s *CommandStore) Resolve(id string) (relays.InFlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(id)
}

// State returns the confirmed state of a relay; unknown relays are off.
func (s *CommandStore) State(relay relays.Relay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[relay]
}

// SetState overwrites the confirmed state of a relay.
func (s *CommandStore) SetState(relay relays.Relay, on bool) {
	s.mu.Lock()
	s.states[relay] = on
	s.mu.Unlock()
}

// Confirm resolves id and applies its target state while holding the lock,
// so no reader observes the entry removed without the state applied.
func (s *CommandStore) Confirm(id string) (relays.InFlight, bool) {
	return s.ConfirmWith(id, nil)
}

// ConfirmWith is Confirm with a hook run under the lock after the state is
// applied. Hooks see confirmations in the order they were applied and must
// not call back into the store.
func (s *CommandStore) ConfirmWith(id string, applied func(relays.InFlight)) (relays.InFlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.resolveLocked(id)
	if !ok {
		return relays.InFlight{}, false
	}
	s.states[entry.Relay] = entry.TargetState
	if applied != nil {
		applied(entry)
	}
	return entry, true
}

// States returns a copy of every confirmed state recorded so far.
func (s *CommandStore) States() map[relays.Relay]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[relays.Relay]bool, len(s.states))
	for relay, on := range s.states {
		out[relay] = on
	}
	return out
}

// InFlight returns the number of commands awaiting acknowledgment.
func (s *CommandStore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// ExpireBefore drops in-flight entries issued before cutoff and returns them
// oldest first. The pending slot is cleared too when its command expires.
func (s *CommandStore) ExpireBefore(cutoff time.Time) []relays.InFlight {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []relays.InFlight
	for id, entry := range s.inFlight {
		if entry.IssuedAt.Before(cutoff) {
			expired = append(expired, entry)
			delete(s.inFlight, id)
		}
	}
	if s.pending != nil && s.pending.IssuedAt.Before(cutoff) {
		s.pending = nil
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].IssuedAt.Before(expired[j].IssuedAt)
	})
	return expired
}

func (s *CommandStore) resolveLocked(id string) (relays.InFlight, bool) {
	if id == "" {
		return relays.InFlight{}, false
	}
	entry, ok := s.inFlight[id]
	if !ok {
		return relays.InFlight{}, false
	}
	delete(s.inFlight, id)
	return entry, true
}
