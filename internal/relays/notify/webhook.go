package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	relays "webrelay/internal/relays/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookObserver posts confirmed changes to an HTTP endpoint. Deliveries run
// in their own goroutine so the acknowledgment path never waits on the network.
type WebhookObserver struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// WebhookOption configures a WebhookObserver.
type WebhookOption func(*WebhookObserver)

// WithWebhookTimeout bounds each delivery.
func WithWebhookTimeout(timeout time.Duration) WebhookOption {
	return func(o *WebhookObserver) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithWebhookLogger sets the logger used for delivery failures.
func WithWebhookLogger(logger *log.Logger) WebhookOption {
	return func(o *WebhookObserver) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type webhookPayload struct {
	Relay       int       `json:"relay"`
	State       bool      `json:"state"`
	Label       string    `json:"label"`
	CommandID   string    `json:"command_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// NewWebhookObserver constructs a webhook observer.
func NewWebhookObserver(rawURL string, opts ...WebhookOption) (*WebhookObserver, error) {
	if rawURL == "" {
		return nil, errors.New("webhook observer: empty url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("webhook observer: invalid url %q", rawURL)
	}
	o := &WebhookObserver{
		url:     rawURL,
		client:  &http.Client{},
		timeout: defaultWebhookTimeout,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// StateConfirmed implements Observer.
func (o *WebhookObserver) StateConfirmed(_ context.Context, change relays.StateChange) {
	if o == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := o.Send(ctx, change); err != nil {
			o.logger.Printf("relay webhook error: command=%s relay=%d err=%v", change.CommandID, change.Relay, err)
		}
	}()
}

// Send delivers one change synchronously.
func (o *WebhookObserver) Send(ctx context.Context, change relays.StateChange) error {
	body, err := json.Marshal(webhookPayload{
		Relay:       int(change.Relay),
		State:       change.State,
		Label:       relays.StateLabel(change.State),
		CommandID:   change.CommandID,
		ConfirmedAt: change.ConfirmedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook observer: status %d", resp.StatusCode)
	}
	return nil
}
