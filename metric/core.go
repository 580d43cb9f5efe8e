package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics shared by the broker, node,
// storage, and transport layers. Domain-specific gauges (ring occupancy,
// flush latency) are registered per-instance through MetricsRegistry rather
// than added here, so this set stays small and ambient.
type Metrics struct {
	// Service / component metrics
	ServiceStatus      *prometheus.GaugeVec
	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Transport metrics (shared by the TCP driver and the optional NATS relay)
	TransportConnected      prometheus.Gauge
	TransportRTT            prometheus.Gauge
	TransportReconnects     prometheus.Counter
	TransportCircuitBreaker prometheus.Gauge

	// SequenceGaps counts dropped-or-reordered envelopes observed by a
	// Consumer/Pipeline, keyed by stream (spec.md §3's sequence-gap
	// counter supplement).
	SequenceGaps *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hermes",
				Subsystem: "service",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of samples received",
			},
			[]string{"service", "type"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of samples processed",
			},
			[]string{"service", "type", "status"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of samples published",
			},
			[]string{"service", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hermes",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Sample processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hermes",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hermes",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection status (0=disconnected, 1=connected)",
			},
		),

		TransportRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hermes",
				Subsystem: "transport",
				Name:      "rtt_milliseconds",
				Help:      "Transport round-trip time in milliseconds",
			},
		),

		TransportReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
		),

		TransportCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hermes",
				Subsystem: "transport",
				Name:      "circuit_breaker",
				Help:      "Transport circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),

		SequenceGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hermes",
				Subsystem: "stream",
				Name:      "sequence_gaps_total",
				Help:      "Total number of out-of-order or dropped envelope sequence numbers observed per stream",
			},
			[]string{"stream"},
		),
	}
}

// RecordSequenceGap increments the sequence-gap counter for stream.
func (c *Metrics) RecordSequenceGap(stream string) {
	c.SequenceGaps.WithLabelValues(stream).Inc()
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(service, messageType string) {
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

// RecordMessageProcessed increments processed message counter
func (c *Metrics) RecordMessageProcessed(service, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(service, messageType, status).Inc()
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(service, subject string) {
	c.MessagesPublished.WithLabelValues(service, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordTransportStatus updates transport connection status
func (c *Metrics) RecordTransportStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.TransportConnected.Set(value)
}

// RecordTransportRTT updates transport round-trip time
func (c *Metrics) RecordTransportRTT(rtt time.Duration) {
	c.TransportRTT.Set(float64(rtt.Milliseconds()))
}

// RecordTransportReconnect increments reconnection counter
func (c *Metrics) RecordTransportReconnect() {
	c.TransportReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.TransportCircuitBreaker.Set(float64(state))
}
