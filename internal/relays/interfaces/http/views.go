package http

import (
	relayapp "webrelay/internal/relays/application"
	relays "webrelay/internal/relays/domain"
)

// RelayState is the confirmed state of one relay.
type RelayState struct {
	Relay int    `json:"relay"`
	State bool   `json:"state"`
	Label string `json:"label"`
}

// SnapshotResponse is the JSON view of all relays.
type SnapshotResponse struct {
	Relays   []RelayState `json:"relays"`
	InFlight int          `json:"in_flight"`
	Pending  string       `json:"pending"`
}

func relayState(relay relays.Relay, on bool) RelayState {
	return RelayState{Relay: int(relay), State: on, Label: relays.StateLabel(on)}
}

func snapshotView(snap relayapp.Snapshot, count int) SnapshotResponse {
	resp := SnapshotResponse{
		Relays:   make([]RelayState, 0, count),
		InFlight: snap.InFlight,
		Pending:  snap.PendingID,
	}
	for i := 1; i <= count; i++ {
		relay := relays.Relay(i)
		resp.Relays = append(resp.Relays, relayState(relay, snap.States[relay]))
	}
	return resp
}
