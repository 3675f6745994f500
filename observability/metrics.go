// Package observability provides Prometheus metrics and OpenTelemetry
// tracing instruments for the delivery engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for Ferry.
type Metrics struct {
	registry *prometheus.Registry

	EventsPublishedTotal prometheus.Counter
	TasksEnqueuedTotal   prometheus.Counter
	AttemptsTotal        *prometheus.CounterVec // by outcome
	AttemptLatency       prometheus.Histogram
	RateLimitedTotal     *prometheus.CounterVec // by overflow action
	AutoPausedTotal      prometheus.Counter
	QueuedTasks          prometheus.Gauge
}

// NewMetrics creates and registers Ferry metric instruments on a private
// registry. Expose them with Handler().
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ferry_events_published_total",
			Help: "Total number of events published.",
		}),
		TasksEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ferry_tasks_enqueued_total",
			Help: "Total number of delivery tasks created by the router.",
		}),
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_delivery_attempts_total",
			Help: "Total number of delivery attempts by outcome.",
		}, []string{"outcome"}), // delivered, retrying, failed, dropped
		AttemptLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ferry_delivery_attempt_latency_seconds",
			Help:    "Latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ferry_rate_limited_total",
			Help: "Total number of rate limiter denials by overflow action.",
		}, []string{"action"}), // queue, drop, error
		AutoPausedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ferry_endpoints_auto_paused_total",
			Help: "Total number of endpoints auto-paused after sustained failures.",
		}),
		QueuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ferry_queued_tasks",
			Help: "Number of delivery tasks awaiting a worker.",
		}),
	}

	reg.MustRegister(
		m.EventsPublishedTotal,
		m.TasksEnqueuedTotal,
		m.AttemptsTotal,
		m.AttemptLatency,
		m.RateLimitedTotal,
		m.AutoPausedTotal,
		m.QueuedTasks,
	)

	return m
}

// RecordAttempt records a delivery attempt outcome and its latency.
func (m *Metrics) RecordAttempt(outcome string, latencySeconds float64) {
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.AttemptLatency.Observe(latencySeconds)
}

// RecordRateLimited records a rate limiter denial.
func (m *Metrics) RecordRateLimited(action string) {
	m.RateLimitedTotal.WithLabelValues(action).Inc()
}

// Handler returns an http.Handler exposing the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
