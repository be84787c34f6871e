package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	relayapp "webrelay/internal/relays/application"
	"webrelay/internal/relays/infrastructure/memory"
	relayhttp "webrelay/internal/relays/interfaces/http"
	"webrelay/internal/relays/notify"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newRelayServer(t *testing.T) (*relayapp.Service, *httptest.Server) {
	t.Helper()
	service, err := relayapp.NewService(memory.NewCommandStore(), notify.NewNotifier(), relayapp.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := relayhttp.NewDeviceHandler(service, quietLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return service, server
}

func TestParseCommand(t *testing.T) {
	var body map[string]json.RawMessage
	_ = json.Unmarshal([]byte(`{"command_id":"abc","relay2":{"state":1,"duration":300}}`), &body)
	cmd, ok, err := ParseCommand(body)
	if err != nil || !ok {
		t.Fatalf("expected command, got ok=%v err=%v", ok, err)
	}
	if cmd.ID != "abc" || cmd.Relay != 2 || !cmd.On || cmd.Duration != 300 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	if _, ok, err := ParseCommand(map[string]json.RawMessage{}); ok || err != nil {
		t.Fatalf("expected empty body to mean nothing pending")
	}

	noRelay := map[string]json.RawMessage{"command_id": json.RawMessage(`"abc"`)}
	cmd, ok, err = ParseCommand(noRelay)
	if err != nil || !ok || cmd.ID != "abc" || cmd.Relay != 0 {
		t.Fatalf("expected relay-less command to be reported, got %+v ok=%v err=%v", cmd, ok, err)
	}

	badRelay := map[string]json.RawMessage{"command_id": json.RawMessage(`"abc"`), "relay1": json.RawMessage(`"on"`)}
	cmd, ok, err = ParseCommand(badRelay)
	if err != nil || !ok || cmd.Relay != 0 {
		t.Fatalf("expected malformed relay field skipped, got %+v ok=%v err=%v", cmd, ok, err)
	}
}

func TestClient_PollAndAckAgainstServer(t *testing.T) {
	service, server := newRelayServer(t)
	client, err := NewClient(server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := client.Poll(ctx); err != nil || ok {
		t.Fatalf("expected nothing pending, got ok=%v err=%v", ok, err)
	}

	issued := service.Issue(ctx, 1, true, relayapp.WithDuration(750))
	cmd, ok, err := client.Poll(ctx)
	if err != nil || !ok {
		t.Fatalf("expected command, got ok=%v err=%v", ok, err)
	}
	if cmd.ID != issued.ID || cmd.Relay != 1 || !cmd.On || cmd.Duration != 750 {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if err := client.Ack(ctx, cmd.ID, AckStatusReceived); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !service.ConfirmedState(1) {
		t.Fatalf("expected relay 1 confirmed on")
	}
}

func TestSimulator_EndToEnd(t *testing.T) {
	service, server := newRelayServer(t)
	client, _ := NewClient(server.URL, time.Second)
	sim, err := NewSimulator(client, 2, WithSimulatorLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	ctx := context.Background()

	service.Issue(ctx, 2, true)
	applied, err := sim.Step(ctx)
	if err != nil || !applied {
		t.Fatalf("expected applied command, got applied=%v err=%v", applied, err)
	}
	if !sim.Output(2) || sim.Output(1) {
		t.Fatalf("expected only relay 2 on")
	}
	if !service.ConfirmedState(2) || service.ConfirmedState(1) {
		t.Fatalf("expected confirmed state to match device")
	}

	applied, err = sim.Step(ctx)
	if err != nil || applied {
		t.Fatalf("expected idle poll, got applied=%v err=%v", applied, err)
	}
}

func TestSimulator_DurationAutoOff(t *testing.T) {
	poller := &stubPoller{commands: []Command{{ID: "c1", Relay: 1, On: true, Duration: 20}}}
	sim, _ := NewSimulator(poller, 2, WithSimulatorLogger(quietLogger()))
	if _, err := sim.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !sim.Output(1) {
		t.Fatalf("expected relay 1 on")
	}
	deadline := time.Now().Add(2 * time.Second)
	for sim.Output(1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sim.Output(1) {
		t.Fatalf("expected relay 1 auto-off")
	}
	if len(poller.acks) != 1 || poller.acks[0] != "c1" {
		t.Fatalf("expected ack for c1, got %v", poller.acks)
	}
}

func TestSimulator_EarlierAutoOffStillFires(t *testing.T) {
	poller := &stubPoller{commands: []Command{
		{ID: "c1", Relay: 1, On: true, Duration: 30},
		{ID: "c2", Relay: 1, On: true},
	}}
	sim, _ := NewSimulator(poller, 2, WithSimulatorLogger(quietLogger()))
	ctx := context.Background()
	_, _ = sim.Step(ctx)
	_, _ = sim.Step(ctx)
	if !sim.Output(1) {
		t.Fatalf("expected relay 1 on after second command")
	}
	deadline := time.Now().Add(2 * time.Second)
	for sim.Output(1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sim.Output(1) {
		t.Fatalf("expected the first command's timer to turn relay 1 off")
	}
}

func TestSimulator_RetriesFailedPoll(t *testing.T) {
	poller := &stubPoller{
		failures: 2,
		commands: []Command{{ID: "c1", Relay: 2, On: true}},
	}
	sim, _ := NewSimulator(poller, 2, WithRetry(3, 0), WithSimulatorLogger(quietLogger()))
	applied, err := sim.Step(context.Background())
	if err != nil || !applied {
		t.Fatalf("expected success after retries, got applied=%v err=%v", applied, err)
	}
	if poller.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", poller.polls)
	}

	poller = &stubPoller{failures: 5}
	sim, _ = NewSimulator(poller, 2, WithRetry(3, 0), WithSimulatorLogger(quietLogger()))
	if _, err := sim.Step(context.Background()); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if poller.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", poller.polls)
	}
}

func TestSimulator_AcksUnknownRelay(t *testing.T) {
	poller := &stubPoller{commands: []Command{{ID: "c9", Relay: 9, On: true}, {ID: "c0"}}}
	sim, _ := NewSimulator(poller, 2, WithSimulatorLogger(quietLogger()))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		applied, err := sim.Step(ctx)
		if err != nil || applied {
			t.Fatalf("expected no output driven, got applied=%v err=%v", applied, err)
		}
	}
	if len(poller.acks) != 2 || poller.acks[0] != "c9" || poller.acks[1] != "c0" {
		t.Fatalf("expected acks for c9 and c0, got %v", poller.acks)
	}
	if sim.Output(1) || sim.Output(2) {
		t.Fatalf("expected outputs unchanged")
	}
}

func TestNewSimulator_Validation(t *testing.T) {
	if _, err := NewSimulator(nil, 2); err == nil {
		t.Fatalf("expected error for nil poller")
	}
	if _, err := NewSimulator(&stubPoller{}, 0); err == nil {
		t.Fatalf("expected error for zero relays")
	}
	if _, err := NewClient("", 0); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

type stubPoller struct {
	mu       sync.Mutex
	failures int
	polls    int
	commands []Command
	acks     []string
}

func (s *stubPoller) Poll(context.Context) (Command, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.failures > 0 {
		s.failures--
		return Command{}, false, errors.New("connection refused")
	}
	if len(s.commands) == 0 {
		return Command{}, false, nil
	}
	cmd := s.commands[0]
	s.commands = s.commands[1:]
	return cmd, true, nil
}

func (s *stubPoller) Ack(_ context.Context, commandID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, commandID)
	return nil
}
