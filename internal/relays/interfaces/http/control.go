package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"webrelay/internal/audit"
	"webrelay/internal/auth"
	relayapp "webrelay/internal/relays/application"
	relays "webrelay/internal/relays/domain"
)

const controlPrefix = "/api/v1/relays"

// SetRequest asks for a relay state change.
type SetRequest struct {
	Relay    int   `json:"relay"`
	State    *bool `json:"state"`
	Duration int   `json:"duration,omitempty"`
}

// SetResponse reports the queued command.
type SetResponse struct {
	CommandID string `json:"command_id"`
	Relay     int    `json:"relay"`
	State     bool   `json:"state"`
	Duration  *int   `json:"duration,omitempty"`
}

// ControlHandler exposes the control surface on /api/v1/relays.
type ControlHandler struct {
	service     *relayapp.Service
	relayCount  int
	auditLogger audit.Logger
}

// NewControlHandler constructs a handler for relays 1..relayCount.
func NewControlHandler(service *relayapp.Service, relayCount int, auditLogger audit.Logger) (*ControlHandler, error) {
	if service == nil {
		return nil, errors.New("relay control handler: nil service")
	}
	if relayCount < 1 {
		return nil, errors.New("relay control handler: relay count must be positive")
	}
	return &ControlHandler{service: service, relayCount: relayCount, auditLogger: auditLogger}, nil
}

// ServeHTTP handles GET/POST /api/v1/relays and GET /api/v1/relays/{n}.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == controlPrefix {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSet(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.handleGetOne(w, r, strings.TrimPrefix(path, controlPrefix+"/"))
}

func (h *ControlHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotView(h.service.Snapshot(h.relayCount), h.relayCount))
}

func (h *ControlHandler) handleGetOne(w http.ResponseWriter, _ *http.Request, raw string) {
	n, err := strconv.Atoi(raw)
	if err != nil || !relays.Relay(n).Valid(h.relayCount) {
		http.Error(w, "relay not found", http.StatusNotFound)
		return
	}
	relay := relays.Relay(n)
	writeJSON(w, http.StatusOK, relayState(relay, h.service.ConfirmedState(relay)))
}

func (h *ControlHandler) handleSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req SetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	relay := relays.Relay(req.Relay)
	cmd := h.service.Issue(r.Context(), relay, *req.State, relayapp.WithDuration(req.Duration))
	resp := SetResponse{
		CommandID: cmd.ID,
		Relay:     req.Relay,
		State:     cmd.TargetState,
		Duration:  cmd.Duration,
	}
	writeJSON(w, http.StatusAccepted, resp)
	h.logAudit(r, resp)
}

func (h *ControlHandler) validate(req SetRequest) error {
	if !relays.Relay(req.Relay).Valid(h.relayCount) {
		return relays.ErrInvalidRelay
	}
	if req.State == nil {
		return errors.New("state required")
	}
	if req.Duration < 0 {
		return relays.ErrInvalidDuration
	}
	return nil
}

func (h *ControlHandler) logAudit(r *http.Request, resp SetResponse) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"relay":    resp.Relay,
		"state":    resp.State,
		"duration": resp.Duration,
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "relay.set",
		ResourceType: "relay_command",
		ResourceID:   resp.CommandID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
