// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signals_agent"

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	discoveries     *prometheus.CounterVec
	activations     *prometheus.CounterVec
	platformCalls   *prometheus.CounterVec
	platformLatency *prometheus.HistogramVec
	aiOutcomes      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Discovery requests by ranking method.",
		}, []string{"method"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Activation requests by resulting state and origin kind.",
		}, []string{"state", "origin"}),
		platformCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_calls_total",
			Help:      "Platform adapter calls by platform, operation and result.",
		}, []string{"platform", "operation", "result"}),
		platformLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "platform_call_seconds",
			Help:      "Platform adapter call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "operation"}),
		aiOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_ranking_outcomes_total",
			Help:      "AI ranking collaborator outcomes.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_cache_lookups_total",
			Help:      "Segment cache lookups by result.",
		}, []string{"result"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed operations by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
	registry.MustRegister(
		m.discoveries,
		m.activations,
		m.platformCalls,
		m.platformLatency,
		m.aiOutcomes,
		m.cacheLookups,
		m.operationErrors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Discovery counts a discovery answered with method.
func (m *Metrics) Discovery(method string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(method).Inc()
}

// Activation counts an activation that ended the request in state.
func (m *Metrics) Activation(state, origin string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(state, origin).Inc()
}

// PlatformCall records one adapter call.
func (m *Metrics) PlatformCall(platform, operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.platformCalls.WithLabelValues(platform, operation, result).Inc()
	m.platformLatency.WithLabelValues(platform, operation).Observe(seconds)
}

// AIOutcome counts an AI ranking outcome (success, timeout, failure).
func (m *Metrics) AIOutcome(outcome string) {
	if m == nil {
		return
	}
	m.aiOutcomes.WithLabelValues(outcome).Inc()
}

// CacheLookup counts a segment cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// OperationError counts a failed operation by error kind.
func (m *Metrics) OperationError(operation, kind string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation, kind).Inc()
}
