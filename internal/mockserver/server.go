// Package mockserver implements a deterministic OpenAI-compatible server
// that stands in for a vLLM deployment in tests and demos. Replies are a
// pure function of the prompt and the configured seed, so assertions
// against it stay stable across runs.
package mockserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tsahiduek/ai-on-eks/internal/observability"
)

const defaultModel = "meta-llama/Llama-3-8B"

// Config holds mock server options.
type Config struct {
	APIKey    string // bearer token required on /v1 routes; empty disables auth
	Model     string // model ID advertised by /v1/models
	LatencyMs int    // artificial delay added to every API response
	Seed      int64  // reply generator seed
}

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	metrics *observability.ServerMetrics
}

// New creates the mock server with its middleware stack and routes.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := observability.NewServerMetrics()
	handler := NewHandler(NewGenerator(cfg.Seed), model, time.Duration(cfg.LatencyMs)*time.Millisecond)

	// Global middleware stack (order matters)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(metrics.Middleware())

	// Authentication (skips public paths)
	if cfg.APIKey != "" {
		e.Use(AuthMiddleware(cfg.APIKey, []string{"/health", "/metrics"}))
	}

	// Public routes
	e.GET("/health", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API routes
	e.GET("/v1/models", handler.ListModels)
	e.POST("/v1/chat/completions", handler.ChatCompletion)
	e.POST("/v1/completions", handler.Completion)
	e.POST("/v1/embeddings", handler.Embeddings)

	return &Server{echo: e, metrics: metrics}
}

// requestLogger logs one slog line per request.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"duration_ms", v.Latency.Milliseconds(),
			}
			if v.RequestID != "" {
				attrs = append(attrs, "request_id", v.RequestID)
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}

// Metrics exposes the server's metrics collector, mainly for tests.
func (s *Server) Metrics() *observability.ServerMetrics {
	return s.metrics
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be
// used with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
