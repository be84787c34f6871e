package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	relays "webrelay/internal/relays/domain"
)

const relayPath = "/api/relay"

// Command is a relay command as received by the device.
type Command struct {
	ID    string
	Relay relays.Relay
	On    bool
	// Duration is the hold time in milliseconds; zero means hold until changed.
	Duration int
}

type wireRelay struct {
	State    int `json:"state"`
	Duration int `json:"duration"`
}

// Client speaks the device side of the relay protocol.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a device client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("device: empty base url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Poll fetches the pending command. ok is false when nothing is pending.
func (c *Client) Poll(ctx context.Context) (Command, bool, error) {
	var body map[string]json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, nil, &body); err != nil {
		return Command{}, false, err
	}
	return ParseCommand(body)
}

// ParseCommand decodes a poll response body. Fields other than command_id and
// relayN are ignored; the first relay field that decodes is used. A command
// with no usable relay field keeps Relay zero and is still reported so the
// device can acknowledge it.
func ParseCommand(body map[string]json.RawMessage) (Command, bool, error) {
	rawID, ok := body["command_id"]
	if !ok {
		return Command{}, false, nil
	}
	var cmd Command
	if err := json.Unmarshal(rawID, &cmd.ID); err != nil {
		return Command{}, false, fmt.Errorf("device: decode command_id: %w", err)
	}
	for field, raw := range body {
		relay, ok := relays.ParseField(field)
		if !ok {
			continue
		}
		var wire wireRelay
		if err := json.Unmarshal(raw, &wire); err != nil {
			continue
		}
		cmd.Relay = relay
		cmd.On = wire.State == 1
		cmd.Duration = wire.Duration
		break
	}
	return cmd, true, nil
}

// Ack reports a command as received.
func (c *Client) Ack(ctx context.Context, commandID, status string) error {
	body := map[string]string{"command_id": commandID, "status": status}
	return c.doJSON(ctx, http.MethodPost, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+relayPath, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("device: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
