// Package observability wires Prometheus and OpenTelemetry into the
// reconciliation engine, satisfying pkg/scheduler's Metrics and Tracer
// interfaces so a session can be run fully instrumented or not at all.
//
// Grounded in vango-go-vango's pkg/middleware/metrics.go (the
// promauto.With(registry)-based counter/histogram/gauge set, and its
// Record* free functions updating a package-level singleton) and
// pkg/middleware/otel.go (one span per unit of work, attributes set from
// context, status recorded from the returned error).
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus registration, mirroring
// vango-go-vango's MetricsConfig (namespace/subsystem/const-labels/
// registry), trimmed of the HTTP-event-specific bucket option.
type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// DefaultMetricsConfig mirrors the teacher's default namespace, renamed to
// this module's domain.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "weave",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds every Prometheus collector the engine updates. It
// satisfies scheduler.Metrics directly.
type Metrics struct {
	buildsTotal     prometheus.Counter
	buildDuration   prometheus.Histogram
	recursionErrors prometheus.Counter
	deltasSent      prometheus.Counter
	activeSessions  prometheus.Gauge
	wsErrors        *prometheus.CounterVec
}

// NewMetrics registers and returns a Metrics instance.
func NewMetrics(config MetricsConfig) *Metrics {
	factory := promauto.With(config.Registry)

	return &Metrics{
		buildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "builds_total",
			Help:        "Total number of high-level element builds run by the scheduler",
			ConstLabels: config.ConstLabels,
		}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "build_duration_seconds",
			Help:        "Duration of a single element build() call",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		}),

		recursionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recursion_errors_total",
			Help:        "Total number of times the scheduler's per-pass rebuild guard tripped",
			ConstLabels: config.ConstLabels,
		}),

		deltasSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deltas_sent_total",
			Help:        "Total number of UpdateComponentStates deltas sent to clients",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of sessions with a live transport connection",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transport_errors_total",
			Help:        "Total transport errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// ObserveBuild implements pkg/scheduler.Metrics.
func (m *Metrics) ObserveBuild(d time.Duration) {
	m.buildsTotal.Inc()
	m.buildDuration.Observe(d.Seconds())
}

// IncRecursionErrors implements pkg/scheduler.Metrics.
func (m *Metrics) IncRecursionErrors() {
	m.recursionErrors.Inc()
}

// RecordDelta records one emitted UpdateComponentStates message.
func (m *Metrics) RecordDelta() {
	m.deltasSent.Inc()
}

// RecordSessionStart records a session gaining a live transport.
func (m *Metrics) RecordSessionStart() {
	m.activeSessions.Inc()
}

// RecordSessionEnd records a session losing its transport (whether closed
// or merely disconnected - spec.md preserves state across the latter, but
// it still stops counting as "active").
func (m *Metrics) RecordSessionEnd() {
	m.activeSessions.Dec()
}

// RecordTransportError records a transport-layer error by category.
func (m *Metrics) RecordTransportError(errType string) {
	m.wsErrors.WithLabelValues(errType).Inc()
}
