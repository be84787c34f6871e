package device

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	relays "webrelay/internal/relays/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultRetries      = 3
	DefaultRetryPause   = time.Second
	AckStatusReceived   = "received"
)

// Poller is the protocol surface the simulator drives.
type Poller interface {
	Poll(ctx context.Context) (Command, bool, error)
	Ack(ctx context.Context, commandID, status string) error
}

// Simulator behaves like the relay board firmware: it polls, drives its
// outputs, and acknowledges each command.
type Simulator struct {
	poller     Poller
	relayCount int
	interval   time.Duration
	retries    int
	retryPause time.Duration
	logger     *log.Logger

	mu      sync.Mutex
	outputs map[relays.Relay]bool
	timers  map[*time.Timer]struct{}
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithPollInterval sets the pause between polls.
func WithPollInterval(interval time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithRetry sets the poll retry count and pause.
func WithRetry(retries int, pause time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if retries > 0 {
			s.retries = retries
		}
		if pause >= 0 {
			s.retryPause = pause
		}
	}
}

// WithSimulatorLogger sets the logger.
func WithSimulatorLogger(logger *log.Logger) SimulatorOption {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSimulator constructs a simulator with relayCount outputs, all off.
func NewSimulator(poller Poller, relayCount int, opts ...SimulatorOption) (*Simulator, error) {
	if poller == nil {
		return nil, errors.New("device simulator: nil poller")
	}
	if relayCount < 1 {
		return nil, errors.New("device simulator: relay count must be positive")
	}
	s := &Simulator{
		poller:     poller,
		relayCount: relayCount,
		interval:   DefaultPollInterval,
		retries:    DefaultRetries,
		retryPause: DefaultRetryPause,
		logger:     log.Default(),
		outputs:    make(map[relays.Relay]bool, relayCount),
		timers:     make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run polls until ctx ends.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.stopTimers()
	for {
		if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("device poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Step performs one poll cycle with retries and applies any command. Every
// received command is acknowledged, including one for a relay the board does
// not have. It reports whether an output was driven.
func (s *Simulator) Step(ctx context.Context) (bool, error) {
	cmd, ok, err := s.pollWithRetry(ctx)
	if err != nil || !ok {
		return false, err
	}
	applied := cmd.Relay.Valid(s.relayCount)
	if applied {
		s.apply(cmd)
	} else {
		s.logger.Printf("device command for unknown relay: command=%s relay=%d", cmd.ID, cmd.Relay)
	}
	if err := s.poller.Ack(ctx, cmd.ID, AckStatusReceived); err != nil {
		return applied, err
	}
	return applied, nil
}

// Output returns the physical state of relay.
func (s *Simulator) Output(relay relays.Relay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[relay]
}

func (s *Simulator) pollWithRetry(ctx context.Context) (Command, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		cmd, ok, err := s.poller.Poll(ctx)
		if err == nil {
			return cmd, ok, nil
		}
		lastErr = err
		s.logger.Printf("device poll attempt %d/%d failed: %v", attempt, s.retries, err)
		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return Command{}, false, ctx.Err()
		case <-time.After(s.retryPause):
		}
	}
	return Command{}, false, lastErr
}

// apply drives the output. An ON with a duration arms its own auto-off timer;
// later commands for the relay leave earlier timers running.
func (s *Simulator) apply(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[cmd.Relay] = cmd.On
	s.logger.Printf("device relay set: relay=%d state=%s command=%s", cmd.Relay, relays.StateLabel(cmd.On), cmd.ID)
	if cmd.On && cmd.Duration > 0 {
		relay := cmd.Relay
		var timer *time.Timer
		timer = time.AfterFunc(time.Duration(cmd.Duration)*time.Millisecond, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.timers[timer]; !ok {
				return
			}
			delete(s.timers, timer)
			s.outputs[relay] = false
			s.logger.Printf("device relay auto-off: relay=%d command=%s", relay, cmd.ID)
		})
		s.timers[timer] = struct{}{}
	}
}

func (s *Simulator) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for timer := range s.timers {
		timer.Stop()
		delete(s.timers, timer)
	}
}
