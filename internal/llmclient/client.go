// Package llmclient provides the base HTTP client for OpenAI-compatible
// inference endpoints with:
// - Request marshaling/unmarshaling
// - Retries with exponential backoff
// - Standardized error parsing (429, 5xx)
// - Circuit breaking
// - Transparent response decompression (gzip, deflate, brotli)
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/httpclient"
	"github.com/tsahiduek/ai-on-eks/internal/version"
)

// Config holds configuration for the endpoint client
type Config struct {
	// EndpointName identifies the endpoint in error messages and metrics
	EndpointName string

	// BaseURL is the API base URL (including /v1)
	BaseURL string

	// Retry configuration
	MaxRetries     int           // Maximum number of retry attempts (default: 3)
	InitialBackoff time.Duration // Initial backoff duration (default: 500ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// Circuit breaker configuration; nil disables circuit breaking
	CircuitBreaker *CircuitBreakerConfig

	// Hooks receive request lifecycle callbacks; all fields optional
	Hooks Hooks
}

// DefaultConfig returns default client configuration for an endpoint
func DefaultConfig(endpointName, baseURL string) Config {
	return Config{
		EndpointName:   endpointName,
		BaseURL:        baseURL,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is the base HTTP client for an inference endpoint
type Client struct {
	httpClient     *http.Client
	streamClient   *http.Client
	config         Config
	headerSetter   HeaderSetter
	circuitBreaker *circuitBreaker
}

// New creates a new endpoint client with the given configuration
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefault(), config, headerSetter)
}

// NewWithHTTPClient creates a new endpoint client with a custom HTTP client.
// The custom client is used for both unary and streaming requests; callers
// that need different stream behavior can use SetStreamHTTPClient.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	c := &Client{
		httpClient:   httpClient,
		streamClient: httpClient,
		config:       config,
		headerSetter: headerSetter,
	}

	if config.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			config.CircuitBreaker.FailureThreshold,
			config.CircuitBreaker.SuccessThreshold,
			config.CircuitBreaker.Timeout,
		)
	}

	return c
}

// SetStreamHTTPClient replaces the HTTP client used for streaming requests.
// Streams need a client without an overall timeout.
func (c *Client) SetStreamHTTPClient(httpClient *http.Client) {
	c.streamClient = httpClient
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// EndpointName returns the configured endpoint name
func (c *Client) EndpointName() string {
	return c.config.EndpointName
}

// CircuitState returns the circuit breaker state string, or "disabled".
func (c *Client) CircuitState() string {
	if c.circuitBreaker == nil {
		return "disabled"
	}
	return c.circuitBreaker.State()
}

// Request represents an HTTP request to be made against the endpoint
type Request struct {
	Method  string
	Path    string
	Body    interface{} // JSON marshaled when not nil
	Headers map[string]string
}

// Response represents an HTTP response with its body fully read
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request with retries and circuit breaking, then unmarshals
// the response into result.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewInvalidResponseError(c.config.EndpointName,
				"failed to unmarshal response: "+err.Error(), err)
		}
	}

	return nil
}

// DoRaw executes a request with retries and circuit breaking, returning the
// raw response. The request body is marshaled once and replayed byte-identical
// across attempts.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, circuitOpenError(c.config.EndpointName)
	}

	bodyBytes, err := marshalBody(req.Body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	maxAttempts := c.config.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.config.Hooks.retry(c.config.EndpointName, attempt)
			backoff := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.doRequest(ctx, req, bodyBytes)
		if err != nil {
			lastErr = err
			if c.circuitBreaker != nil {
				c.circuitBreaker.RecordFailure()
			}
			continue
		}

		if c.isRetryable(resp.StatusCode) {
			if c.circuitBreaker != nil {
				c.circuitBreaker.RecordFailure()
			}
			lastErr = core.ParseServerError(c.config.EndpointName, resp.StatusCode, resp.Body, nil)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if c.circuitBreaker != nil && resp.StatusCode >= 500 {
				c.circuitBreaker.RecordFailure()
			}
			return nil, core.ParseServerError(c.config.EndpointName, resp.StatusCode, resp.Body, nil)
		}

		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordSuccess()
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, core.NewServerError(c.config.EndpointName, http.StatusBadGateway,
		"request failed after retries", nil)
}

// DoStream executes a streaming request, returning the response body.
// Streaming requests do NOT retry (partial data may have been sent) and do
// not advertise compression.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, circuitOpenError(c.config.EndpointName)
	}

	bodyBytes, err := marshalBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.buildRequest(ctx, req, bodyBytes, true)
	if err != nil {
		return nil, err
	}

	c.config.Hooks.request(c.config.EndpointName, req.Method, req.Path)
	start := time.Now()

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		return nil, core.NewConnectionError(c.config.EndpointName, err)
	}

	c.config.Hooks.response(c.config.EndpointName, req.Method, req.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()

		if c.circuitBreaker != nil {
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				c.circuitBreaker.RecordFailure()
			}
		}
		return nil, core.ParseServerError(c.config.EndpointName, resp.StatusCode, respBody, nil)
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
	return resp.Body, nil
}

// maxErrorBodyRead bounds how much of a failed stream's body is read back.
const maxErrorBodyRead = 64 * 1024

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, req Request, bodyBytes []byte) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req, bodyBytes, false)
	if err != nil {
		return nil, err
	}

	c.config.Hooks.request(c.config.EndpointName, req.Method, req.Path)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewConnectionError(c.config.EndpointName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewConnectionError(c.config.EndpointName, err)
	}

	c.config.Hooks.response(c.config.EndpointName, req.Method, req.Path, resp.StatusCode, time.Since(start))

	// We advertise Accept-Encoding ourselves, so the transport does not
	// auto-decompress. Undo whatever encoding the server picked.
	if encoding := resp.Header.Get("Content-Encoding"); encoding != "" {
		if decoded, ok := decompressBody(body, encoding); ok {
			body = decoded
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request and pre-marshaled body
func (c *Client) buildRequest(ctx context.Context, req Request, bodyBytes []byte, streaming bool) (*http.Request, error) {
	url := c.config.BaseURL + req.Path

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	if bodyBytes != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())

	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	}

	// Endpoint-level headers (auth), then request-specific overrides
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}
	return bodyBytes, nil
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryable returns true if the status code indicates a retryable error
func (c *Client) isRetryable(statusCode int) bool {
	// Retry on rate limits and transient server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}
