// Package observability wires Prometheus metrics for the gateway, grounded
// on kadirpekel-hector's pkg/observability/metrics.go (namespaced
// CounterVec/HistogramVec/GaugeVec registered against a private registry,
// nil-receiver methods so metrics are optional), scaled down to the
// gateway's own domain: per-backend health gauges and request counters
// instead of agent/LLM/RAG metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcp_gateway"

// Metrics holds every Prometheus collector the gateway exports. A nil
// *Metrics is valid and every method on it is a no-op, so callers that
// choose not to wire metrics don't need to guard every call site.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	backendRunning      *prometheus.GaugeVec
	backendRestartCount *prometheus.GaugeVec
	backendToolsCached  *prometheus.GaugeVec
}

// New builds a Metrics instance with its own private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled by the gateway.",
	}, []string{"route", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	m.backendRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "running",
		Help:      "1 if the backend's transport is currently running/initialized, 0 otherwise.",
	}, []string{"backend"})

	m.backendRestartCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "restart_count",
		Help:      "Number of times this backend's process has been respawned after its first start.",
	}, []string{"backend"})

	m.backendToolsCached = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "tools_cached",
		Help:      "Number of tools currently cached for this backend.",
	}, []string{"backend"})

	m.registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.backendRunning, m.backendRestartCount, m.backendToolsCached,
	)
	return m
}

// RecordRequest records one completed HTTP request.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, status).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SetBackendState publishes one backend's current health snapshot.
func (m *Metrics) SetBackendState(name string, running bool, restartCount, toolsCached int) {
	if m == nil {
		return
	}
	runningVal := 0.0
	if running {
		runningVal = 1.0
	}
	m.backendRunning.WithLabelValues(name).Set(runningVal)
	m.backendRestartCount.WithLabelValues(name).Set(float64(restartCount))
	m.backendToolsCached.WithLabelValues(name).Set(float64(toolsCached))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
