// Package observability provides Prometheus metrics for the inference
// client and the mock server. All collectors live on per-instance
// registries rather than the process-global default, so parallel tests and
// embedded uses never collide on registration.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the client-side request collectors. Wire Hooks() into the
// endpoint registry so every attempt is observed.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// NewMetrics creates the client-side collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferctl_requests_total",
				Help: "Total requests sent to inference endpoints",
			},
			[]string{"endpoint", "operation", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inferctl_request_duration_seconds",
				Help:    "Inference request duration",
				Buckets: LLMBuckets,
			},
			[]string{"endpoint", "operation"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferctl_retries_total",
				Help: "Total request retries",
			},
			[]string{"endpoint"},
		),
	}

	m.registry.MustRegister(m.requests, m.duration, m.retries)
	return m
}

// Hooks returns request lifecycle callbacks that update the collectors.
func (m *Metrics) Hooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnResponse: func(endpoint, method, path string, statusCode int, duration time.Duration) {
			op := operationFromPath(path)
			m.requests.WithLabelValues(endpoint, op, strconv.Itoa(statusCode)).Inc()
			m.duration.WithLabelValues(endpoint, op).Observe(duration.Seconds())
		},
		OnRetry: func(endpoint string, attempt int) {
			m.retries.WithLabelValues(endpoint).Inc()
		},
	}
}

// WatchCircuit registers a gauge reporting an endpoint's circuit breaker
// state at scrape time: 0 closed, 1 half-open, 2 open.
func (m *Metrics) WatchCircuit(endpoint string, state func() string) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "inferctl_circuit_state",
			Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			ConstLabels: prometheus.Labels{"endpoint": endpoint},
		},
		func() float64 {
			switch state() {
			case "closed":
				return 0
			case "half-open":
				return 1
			case "open":
				return 2
			default:
				return -1
			}
		},
	))
}

// Registry exposes the underlying registry for embedding and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// operationFromPath maps an API path to its operation label. Unknown paths
// keep their trailing segment so new routes remain distinguishable without
// unbounded label cardinality.
func operationFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		return "chat"
	case strings.HasSuffix(path, "/completions"):
		return "completion"
	case strings.HasSuffix(path, "/embeddings"):
		return "embeddings"
	case strings.HasSuffix(path, "/models"):
		return "models"
	}
	if i := strings.LastIndex(path, "/"); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	return "unknown"
}
