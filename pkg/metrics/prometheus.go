package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketEventsTotal   *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Encryption Metrics
	sealsTotal       *prometheus.CounterVec
	sealDuration     *prometheus.HistogramVec
	sealPoolQueue    prometheus.Gauge
	sealPoolRespawns prometheus.Counter

	// Read Receipt Metrics
	receiptsTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal  *prometheus.CounterVec
	callsActive prometheus.Gauge

	// Message Metrics
	messagesSentTotal prometheus.Counter

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_events_total",
				Help:        "Total number of WebSocket events by name and direction",
				ConstLabels: labels,
			},
			[]string{"event", "direction"},
		),
		websocketErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		sealsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "session_key_seals_total",
				Help:        "Total number of session-key seal operations by path and result",
				ConstLabels: labels,
			},
			[]string{"path", "result"},
		),
		sealDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "session_key_seal_duration_seconds",
				Help:        "Seal operation latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"path"},
		),
		sealPoolQueue: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "seal_pool_queue_depth",
				Help:        "Number of seal tasks waiting for a worker",
				ConstLabels: labels,
			},
		),
		sealPoolRespawns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "seal_pool_worker_respawns_total",
				Help:        "Total number of seal workers replaced after a failure",
				ConstLabels: labels,
			},
		),
		receiptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "read_receipts_total",
				Help:        "Total number of read-receipt events by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_events_total",
				Help:        "Total number of call signaling events by type and outcome",
				ConstLabels: labels,
			},
			[]string{"event", "outcome"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of calls currently in INITIATED or ANSWERED state",
				ConstLabels: labels,
			},
		),
		messagesSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "messages_sent_total",
				Help:        "Total number of encrypted messages persisted",
				ConstLabels: labels,
			},
		),
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests by method, route and status",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// WebSocket Metrics Methods

// IncWebSocketConnections increments the active connection gauge
func (m *Metrics) IncWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecWebSocketConnections decrements the active connection gauge
func (m *Metrics) DecWebSocketConnections() {
	m.websocketConnections.Dec()
}

// RecordWebSocketEvent records an inbound or outbound event
func (m *Metrics) RecordWebSocketEvent(event, direction string) {
	m.websocketEventsTotal.WithLabelValues(event, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(kind string) {
	m.websocketErrorsTotal.WithLabelValues(kind).Inc()
}

// Encryption Metrics Methods

// RecordSeal records one session-key seal operation.
// path is inline, pooled or fallback; result is ok or error.
func (m *Metrics) RecordSeal(path, result string, duration time.Duration) {
	m.sealsTotal.WithLabelValues(path, result).Inc()
	m.sealDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// SetSealQueueDepth sets the pending seal task gauge
func (m *Metrics) SetSealQueueDepth(depth int) {
	m.sealPoolQueue.Set(float64(depth))
}

// RecordWorkerRespawn counts a seal worker replaced after failure
func (m *Metrics) RecordWorkerRespawn() {
	m.sealPoolRespawns.Inc()
}

// Receipt Metrics Methods

// RecordReceipt records a read-receipt outcome (created, duplicate, rejected, ignored, error)
func (m *Metrics) RecordReceipt(outcome string) {
	m.receiptsTotal.WithLabelValues(outcome).Inc()
}

// Call Metrics Methods

// RecordCallEvent records a signaling event outcome
func (m *Metrics) RecordCallEvent(event, outcome string) {
	m.callsTotal.WithLabelValues(event, outcome).Inc()
}

// IncActiveCalls increments the active call gauge
func (m *Metrics) IncActiveCalls() {
	m.callsActive.Inc()
}

// DecActiveCalls decrements the active call gauge
func (m *Metrics) DecActiveCalls() {
	m.callsActive.Dec()
}

// Message Metrics Methods

// RecordMessageSent counts a persisted encrypted message
func (m *Metrics) RecordMessageSent() {
	m.messagesSentTotal.Inc()
}

// HTTP Metrics Methods

// RecordHTTPRequest records one completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
