package endpoints

import (
	"context"
	"fmt"

	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/vllm"
)

// ErrRegistryNotInitialized is returned when the router is used before the
// registry has any models.
var ErrRegistryNotInitialized = fmt.Errorf("endpoint registry has no models: ensure Initialize() or LoadFromCache() is called before routing")

// Router routes requests to the endpoint serving the requested model.
//
// With exactly one registered endpoint there is nothing to decide: requests
// go straight to it without any discovery round trip, so a plain
// single-server setup works with zero registry state.
type Router struct {
	registry *Registry
}

// NewRouter creates a new router over an endpoint registry.
// Returns an error if the registry is nil.
func NewRouter(registry *Registry) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	return &Router{
		registry: registry,
	}, nil
}

// For returns the client that should handle the given model.
func (r *Router) For(model string) (*vllm.Client, error) {
	// Single-endpoint fast path: no discovery needed.
	if eps := r.registry.Endpoints(); len(eps) == 1 {
		return eps[0].Client, nil
	}

	if r.registry.ModelCount() == 0 {
		return nil, ErrRegistryNotInitialized
	}
	ep := r.registry.EndpointFor(model)
	if ep == nil {
		return nil, core.NewNotFoundError(fmt.Sprintf("no endpoint serves model: %s", model))
	}
	return ep.Client, nil
}

// Supports returns true if some endpoint serves the given model.
// With a single endpoint this is always true.
func (r *Router) Supports(model string) bool {
	if r.registry.EndpointCount() == 1 {
		return true
	}
	return r.registry.Supports(model)
}

// ChatCompletion routes the request to the endpoint serving the model.
func (r *Router) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	client, err := r.For(req.Model)
	if err != nil {
		return nil, err
	}
	return client.ChatCompletion(ctx, req)
}

// StreamChatCompletion routes the streaming request to the endpoint serving
// the model.
func (r *Router) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (*vllm.StreamReader, error) {
	client, err := r.For(req.Model)
	if err != nil {
		return nil, err
	}
	return client.StreamChatCompletion(ctx, req)
}

// Completion routes the text completion request to the endpoint serving the
// model.
func (r *Router) Completion(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResponse, error) {
	client, err := r.For(req.Model)
	if err != nil {
		return nil, err
	}
	return client.Completion(ctx, req)
}

// Embeddings routes the embeddings request to the endpoint serving the model.
func (r *Router) Embeddings(ctx context.Context, req *core.EmbeddingsRequest) (*core.EmbeddingsResponse, error) {
	client, err := r.For(req.Model)
	if err != nil {
		return nil, err
	}
	return client.Embeddings(ctx, req)
}

// ListModels returns all models from the registry.
func (r *Router) ListModels(_ context.Context) (*core.ModelsResponse, error) {
	if r.registry.EndpointCount() > 1 && r.registry.ModelCount() == 0 {
		return nil, ErrRegistryNotInitialized
	}
	return &core.ModelsResponse{
		Object: "list",
		Data:   r.registry.ListModels(),
	}, nil
}

// EndpointName returns the name of the endpoint serving the given model, or
// the single endpoint's name. Empty when unknown.
func (r *Router) EndpointName(model string) string {
	if eps := r.registry.Endpoints(); len(eps) == 1 {
		return eps[0].Name
	}
	if ep := r.registry.EndpointFor(model); ep != nil {
		return ep.Name
	}
	return ""
}
