package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics holds the mock server's request collectors on a dedicated
// registry, mirroring the client-side Metrics type.
type ServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServerMetrics creates the server-side collectors on a fresh registry.
func NewServerMetrics() *ServerMetrics {
	s := &ServerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mockvllm_requests_total",
				Help: "Total HTTP requests served",
			},
			[]string{"method", "path", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mockvllm_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: LLMBuckets,
			},
			[]string{"method", "path"},
		),
	}

	s.registry.MustRegister(s.requests, s.duration)
	return s
}

// Middleware records a counter and duration sample per request. The path
// label uses the matched route template, keeping cardinality bounded.
func (s *ServerMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}

			method := c.Request().Method
			s.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			s.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Registry exposes the underlying registry for tests.
func (s *ServerMetrics) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the collectors in the Prometheus text format.
func (s *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
