package metrics

import (
	"database/sql"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "relay_"

	pollResultDelivered = "delivered"
	pollResultEmpty     = "empty"

	ackResultAcked   = "acked"
	ackResultUnknown = "unknown"
	ackResultIgnored = "ignored"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	commandsIssued     *prometheus.CounterVec
	pendingOverwritten prometheus.Counter
	polls              *prometheus.CounterVec
	acks               *prometheus.CounterVec
	commandsExpired    prometheus.Counter
	inFlight           prometheus.Gauge
	confirmedState     *prometheus.GaugeVec
	ackLatency         prometheus.Histogram
	exportTotal        *prometheus.CounterVec
	exportLatency      *prometheus.HistogramVec
)

// Init registers relay metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		commandsIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total issued relay commands by relay",
			},
			[]string{"relay"},
		)
		pendingOverwritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "pending_overwritten_total",
				Help: "Undelivered commands replaced by a newer command",
			},
		)
		polls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "polls_total",
				Help: "Total device polls by result",
			},
			[]string{"result"},
		)
		acks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "acks_total",
				Help: "Total device acknowledgments by result",
			},
			[]string{"result"},
		)
		commandsExpired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_expired_total",
				Help: "In-flight commands dropped by the expiry sweep",
			},
		)
		inFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "inflight_commands",
				Help: "Commands awaiting acknowledgment",
			},
		)
		confirmedState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "confirmed_state",
				Help: "Confirmed relay state (1 on, 0 off)",
			},
			[]string{"relay"},
		)
		ackLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ack_latency_seconds",
				Help:    "Time from issue to acknowledgment in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
			},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total history export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			commandsIssued,
			pendingOverwritten,
			polls,
			acks,
			commandsExpired,
			inFlight,
			confirmedState,
			ackLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncCommandIssued increments issued command counter.
func IncCommandIssued(relay int) {
	if commandsIssued != nil {
		commandsIssued.WithLabelValues(strconv.Itoa(relay)).Inc()
	}
}

// IncPendingOverwritten counts a pending command replaced before delivery.
func IncPendingOverwritten() {
	if pendingOverwritten != nil {
		pendingOverwritten.Inc()
	}
}

// ObservePoll records a device poll.
func ObservePoll(delivered bool) {
	if polls == nil {
		return
	}
	if delivered {
		polls.WithLabelValues(pollResultDelivered).Inc()
		return
	}
	polls.WithLabelValues(pollResultEmpty).Inc()
}

// IncAck increments the acknowledgment counter for result.
func IncAck(result string) {
	if result == "" {
		result = "unknown"
	}
	if acks != nil {
		acks.WithLabelValues(result).Inc()
	}
}

// ObserveAckLatency records time between issue and acknowledgment.
func ObserveAckLatency(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	if ackLatency != nil {
		ackLatency.Observe(latency.Seconds())
	}
}

// AddCommandsExpired increments expired counter by count.
func AddCommandsExpired(count int) {
	if count <= 0 {
		return
	}
	if commandsExpired != nil {
		commandsExpired.Add(float64(count))
	}
}

// SetInFlight sets the in-flight gauge.
func SetInFlight(count int) {
	if inFlight != nil {
		inFlight.Set(float64(count))
	}
}

// SetConfirmedState publishes a relay's confirmed state.
func SetConfirmedState(relay int, on bool) {
	if confirmedState == nil {
		return
	}
	value := 0.0
	if on {
		value = 1
	}
	confirmedState.WithLabelValues(strconv.Itoa(relay)).Set(value)
}

// ObserveHistoryExport records export latency and result.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	AckResultAcked   = ackResultAcked
	AckResultUnknown = ackResultUnknown
	AckResultIgnored = ackResultIgnored

	ResultSuccess = resultSuccess
	ResultError   = resultError
)
