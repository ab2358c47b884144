// Package metrics provides Prometheus metrics for the rank hub service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultNamespace prefixes every metric exported by this package.
const defaultNamespace = "rankhub"

// Metrics holds all Prometheus collectors for the service. All methods are
// safe to call on a nil receiver, so instrumentation points do not need to
// guard against metrics being disabled.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface.
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Discord interactions.
	interactionsReceived *prometheus.CounterVec
	signatureRejections  prometheus.Counter

	// Command execution.
	commandsHandled *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Background reconciliation.
	reconcileRuns *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry. The registry
// carries the Go runtime and process collectors alongside the service
// metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: defaultNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		interactionsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "discord",
			Name:      "interactions_received_total",
			Help:      "Verified Discord interactions by interaction type.",
		}, []string{"type"}),

		signatureRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "discord",
			Name:      "signature_rejections_total",
			Help:      "Interaction requests rejected by Ed25519 verification.",
		}),

		commandsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "commands",
			Name:      "handled_total",
			Help:      "Slash command executions by command and outcome.",
		}, []string{"command", "outcome"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: defaultNamespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Slash command execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),

		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Background name reconciliation runs by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one handled HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordInteraction counts one verified interaction of the given type.
func (m *Metrics) RecordInteraction(interactionType string) {
	if m == nil {
		return
	}
	m.interactionsReceived.WithLabelValues(interactionType).Inc()
}

// RecordSignatureRejection counts one request that failed signature checks.
func (m *Metrics) RecordSignatureRejection() {
	if m == nil {
		return
	}
	m.signatureRejections.Inc()
}

// RecordCommand records one slash command execution.
func (m *Metrics) RecordCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandsHandled.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordReconcileRun records one background reconciliation run.
func (m *Metrics) RecordReconcileRun(outcome string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
}
