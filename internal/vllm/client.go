// Package vllm provides the client for vLLM's OpenAI-compatible API.
package vllm

import (
	"context"
	"net/http"

	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/httpclient"
	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
)

const (
	defaultBaseURL = "http://localhost:8000/v1"
)

// Client talks to a single vLLM server
type Client struct {
	client *llmclient.Client
	apiKey string
}

// New creates a new vLLM client with default resilience settings.
func New(apiKey string, hooks llmclient.Hooks) *Client {
	c := &Client{apiKey: apiKey}
	cfg := llmclient.DefaultConfig("vllm", defaultBaseURL)
	cfg.Hooks = hooks
	c.client = llmclient.New(cfg, c.setHeaders)
	c.client.SetStreamHTTPClient(httpclient.NewStreaming())
	return c
}

// NewWithConfig creates a new vLLM client with explicit client configuration.
func NewWithConfig(apiKey string, cfg llmclient.Config) *Client {
	c := &Client{apiKey: apiKey}
	c.client = llmclient.New(cfg, c.setHeaders)
	c.client.SetStreamHTTPClient(httpclient.NewStreaming())
	return c
}

// NewWithHTTPClient creates a new vLLM client with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, hooks llmclient.Hooks) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{apiKey: apiKey}
	cfg := llmclient.DefaultConfig("vllm", defaultBaseURL)
	cfg.Hooks = hooks
	c.client = llmclient.NewWithHTTPClient(httpClient, cfg, c.setHeaders)
	return c
}

// SetBaseURL allows configuring a custom base URL for the endpoint
func (c *Client) SetBaseURL(url string) {
	c.client.SetBaseURL(url)
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.client.BaseURL()
}

// CircuitState exposes the underlying circuit breaker state
func (c *Client) CircuitState() string {
	return c.client.CircuitState()
}

// setHeaders sets the required headers for vLLM API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	// Forward request ID if present in context. Keep it ASCII and short so
	// proxies in front of the server don't reject the request.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidRequestID(requestID) {
		req.Header.Set("X-Request-Id", requestID)
	}
}

// isValidRequestID checks that the request ID is ASCII-only and at most 512
// characters.
func isValidRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// ChatCompletion sends a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if err := validateChatRequest(req); err != nil {
		return nil, err
	}

	var resp core.ChatResponse
	err := c.client.Do(ctx, llmclient.Request{
		Method: http.MethodPost,
		Path:   "/chat/completions",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	// A 2xx response with zero choices is a server bug; surface it instead
	// of handing back an unusable response.
	if len(resp.Choices) == 0 {
		return nil, core.NewInvalidResponseError(c.client.EndpointName(),
			"chat completion returned no choices", core.ErrNoChoices)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// StreamChatCompletion sends a streaming chat completion request. The caller
// must Close the returned reader.
func (c *Client) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (*StreamReader, error) {
	if err := validateChatRequest(req); err != nil {
		return nil, err
	}

	streamReq := req.WithStreaming()
	body, err := c.client.DoStream(ctx, llmclient.Request{
		Method: http.MethodPost,
		Path:   "/chat/completions",
		Body:   streamReq,
	})
	if err != nil {
		return nil, err
	}
	return newStreamReader(c.client.EndpointName(), body), nil
}

// Completion sends a legacy text completion request
func (c *Client) Completion(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is nil", nil)
	}
	if req.Model == "" {
		return nil, core.NewInvalidRequestError("model is required", nil)
	}
	if req.Prompt == "" {
		return nil, core.NewInvalidRequestError("prompt is required", nil)
	}

	var resp core.CompletionResponse
	err := c.client.Do(ctx, llmclient.Request{
		Method: http.MethodPost,
		Path:   "/completions",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewInvalidResponseError(c.client.EndpointName(),
			"completion returned no choices", core.ErrNoChoices)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// Embeddings sends an embeddings request
func (c *Client) Embeddings(ctx context.Context, req *core.EmbeddingsRequest) (*core.EmbeddingsResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is nil", nil)
	}
	if req.Model == "" {
		return nil, core.NewInvalidRequestError("model is required", nil)
	}
	if len(req.Input) == 0 {
		return nil, core.NewInvalidRequestError("input must not be empty", nil)
	}

	var resp core.EmbeddingsResponse
	err := c.client.Do(ctx, llmclient.Request{
		Method: http.MethodPost,
		Path:   "/embeddings",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels retrieves the models served by the endpoint
func (c *Client) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	var resp core.ModelsResponse
	err := c.client.Do(ctx, llmclient.Request{
		Method: http.MethodGet,
		Path:   "/models",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func validateChatRequest(req *core.ChatRequest) error {
	if req == nil {
		return core.NewInvalidRequestError("request is nil", nil)
	}
	if req.Model == "" {
		return core.NewInvalidRequestError("model is required", nil)
	}
	if len(req.Messages) == 0 {
		return core.NewInvalidRequestError("messages must not be empty", nil)
	}
	return nil
}
