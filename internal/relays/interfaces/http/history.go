package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"webrelay/internal/observability/metrics"
	"webrelay/internal/relays/history"
)

// HistoryResponse lists recent commands.
type HistoryResponse struct {
	Records     []history.Record `json:"records"`
	IgnoredAcks int              `json:"ignored_acks"`
}

// HistoryHandler serves /api/v1/relays/history and its exports.
type HistoryHandler struct {
	recorder *history.Recorder
	now      func() time.Time
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(recorder *history.Recorder) (*HistoryHandler, error) {
	if recorder == nil {
		return nil, errors.New("relay history handler: nil recorder")
	}
	return &HistoryHandler{recorder: recorder, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ServeHTTP handles GET /api/v1/relays/history?limit=N.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}
	records := h.recorder.List(limit)
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Records: records, IgnoredAcks: h.recorder.IgnoredAcks()})
}

// XLSX handles GET /api/v1/relays/history.xlsx.
func (h *HistoryHandler) XLSX() http.Handler {
	return h.export("xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", history.BuildXLSX)
}

// PDF handles GET /api/v1/relays/history.pdf.
func (h *HistoryHandler) PDF() http.Handler {
	return h.export("pdf", "application/pdf", history.BuildPDF)
}

func (h *HistoryHandler) export(format, contentType string, build func([]history.Record, time.Time) ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		result := metrics.ResultSuccess
		defer func() {
			metrics.ObserveHistoryExport(format, result, time.Since(start))
		}()

		limit, ok := parseLimit(r)
		if !ok {
			result = metrics.ResultError
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		generatedAt := h.now()
		data, err := build(h.recorder.List(limit), generatedAt)
		if err != nil {
			result = metrics.ResultError
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		filename := "relay-history-" + generatedAt.Format("20060102-150405") + "." + format
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}
