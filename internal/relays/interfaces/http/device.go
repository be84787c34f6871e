package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	relayapp "webrelay/internal/relays/application"
)

const maxAckBody = 64 << 10

var emptyObject = []byte("{}\n")

type wireRelay struct {
	State    int  `json:"state"`
	Duration *int `json:"duration,omitempty"`
}

type ackRequest struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

// DeviceHandler serves the polled device protocol on /api/relay.
type DeviceHandler struct {
	service *relayapp.Service
	logger  *log.Logger
}

// NewDeviceHandler constructs a device handler.
func NewDeviceHandler(service *relayapp.Service, logger *log.Logger) (*DeviceHandler, error) {
	if service == nil {
		return nil, errors.New("relay device handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET/POST /api/relay.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handlePoll(w, r)
	case http.MethodPost:
		h.handleAck(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *DeviceHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	cmd, ok := h.service.Poll(r.Context())
	if !ok {
		_, _ = w.Write(emptyObject)
		return
	}
	body := map[string]any{"command_id": cmd.ID}
	body[cmd.Relay.Field()] = wireRelay{
		State:    cmd.WireState(),
		Duration: cmd.Duration,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// handleAck always answers 200 {}; the device has no use for errors.
func (h *DeviceHandler) handleAck(w http.ResponseWriter, r *http.Request) {
	defer func() {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(emptyObject)
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAckBody))
	if err != nil {
		h.logger.Printf("relay ack read error: %v", err)
		return
	}
	defer r.Body.Close()

	var req ackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Printf("relay ack malformed: %v", err)
		return
	}
	h.service.Acknowledge(r.Context(), req.CommandID, req.Status)
}
