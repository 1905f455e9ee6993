// Package endpoints provides the registry and router for named vLLM
// endpoints. The registry discovers which models each endpoint serves and
// keeps a model-to-endpoint mapping that survives restarts through the
// snapshot cache.
package endpoints

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/cache"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/vllm"
)

// Endpoint couples a named vLLM client with its configuration identity.
type Endpoint struct {
	Name    string
	BaseURL string
	Client  *vllm.Client
}

// NewEndpoint creates an endpoint from a name and a configured client.
func NewEndpoint(name string, client *vllm.Client) *Endpoint {
	return &Endpoint{
		Name:    name,
		BaseURL: client.BaseURL(),
		Client:  client,
	}
}

// ModelInfo holds information about a model and the endpoint serving it
type ModelInfo struct {
	Model    core.Model
	Endpoint *Endpoint
}

// Registry manages the mapping of models to endpoints.
// It fetches model lists from endpoints on startup and caches them in
// memory. Supports loading from a snapshot cache for instant startup.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]*ModelInfo // model ID -> model info
	endpoints []*Endpoint
	store     cache.Cache

	initialized bool       // true when at least one successful network fetch completed
	initMu      sync.Mutex // protects initialized flag
}

// NewRegistry creates a new endpoint registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*ModelInfo),
	}
}

// SetCache sets the snapshot store used for persistent model storage
func (r *Registry) SetCache(store cache.Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// Register adds an endpoint to the registry
func (r *Registry) Register(ep *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, ep)
}

// Initialize fetches model lists from all registered endpoints and populates
// the registry. This should be called on startup.
func (r *Registry) Initialize(ctx context.Context) error {
	// Get a snapshot of endpoints with a read lock
	r.mu.RLock()
	endpoints := make([]*Endpoint, len(r.endpoints))
	copy(endpoints, r.endpoints)
	r.mu.RUnlock()

	// Build the new models map without holding the lock.
	// Concurrent reads keep using the existing map while we fetch model
	// lists over the network.
	newModels := make(map[string]*ModelInfo)
	var totalModels int
	var failedEndpoints int

	for _, ep := range endpoints {
		resp, err := ep.Client.ListModels(ctx)
		if err != nil {
			slog.Warn("failed to fetch models from endpoint",
				"endpoint", ep.Name,
				"error", err,
			)
			failedEndpoints++
			continue
		}

		for _, model := range resp.Data {
			if existing, exists := newModels[model.ID]; exists {
				// First endpoint wins when two endpoints serve the same model
				slog.Debug("model already registered, skipping",
					"model", model.ID,
					"endpoint", ep.Name,
					"serving_endpoint", existing.Endpoint.Name,
				)
				continue
			}

			newModels[model.ID] = &ModelInfo{
				Model:    model,
				Endpoint: ep,
			}
			totalModels++
		}
	}

	if totalModels == 0 {
		if failedEndpoints == len(endpoints) {
			return fmt.Errorf("failed to fetch models from any endpoint")
		}
		return fmt.Errorf("no models available: endpoints returned empty model lists")
	}

	// Atomically swap the models map
	r.mu.Lock()
	r.models = newModels
	r.mu.Unlock()

	// Mark as initialized
	r.initMu.Lock()
	r.initialized = true
	r.initMu.Unlock()

	slog.Info("endpoint registry initialized",
		"total_models", totalModels,
		"endpoints", len(endpoints),
		"failed_endpoints", failedEndpoints,
	)

	return nil
}

// Refresh updates the registry by fetching fresh model lists from endpoints.
func (r *Registry) Refresh(ctx context.Context) error {
	return r.Initialize(ctx)
}

// LoadFromCache loads the model mapping from the snapshot store.
// Returns the number of models loaded and any error encountered.
func (r *Registry) LoadFromCache(ctx context.Context) (int, error) {
	r.mu.RLock()
	store := r.store
	byName := make(map[string]*Endpoint, len(r.endpoints))
	for _, ep := range r.endpoints {
		byName[ep.Name] = ep
	}
	r.mu.RUnlock()

	if store == nil {
		return 0, nil
	}

	snap, err := store.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return 0, nil // No snapshot yet, not an error
	}

	// Populate the models map from the snapshot, skipping endpoints that
	// are no longer configured.
	newModels := make(map[string]*ModelInfo)
	for _, cached := range snap.Endpoints {
		ep, ok := byName[cached.Name]
		if !ok {
			continue
		}
		for _, model := range cached.Models {
			if _, exists := newModels[model.ID]; exists {
				continue
			}
			newModels[model.ID] = &ModelInfo{
				Model:    model,
				Endpoint: ep,
			}
		}
	}

	r.mu.Lock()
	r.models = newModels
	r.mu.Unlock()

	slog.Info("loaded models from snapshot",
		"models", len(newModels),
		"snapshot_updated_at", snap.UpdatedAt,
	)

	return len(newModels), nil
}

// SaveToCache saves the current model mapping to the snapshot store.
func (r *Registry) SaveToCache(ctx context.Context) error {
	r.mu.RLock()
	store := r.store
	endpoints := make([]*Endpoint, len(r.endpoints))
	copy(endpoints, r.endpoints)
	perEndpoint := make(map[string][]core.Model)
	for _, info := range r.models {
		perEndpoint[info.Endpoint.Name] = append(perEndpoint[info.Endpoint.Name], info.Model)
	}
	r.mu.RUnlock()

	if store == nil {
		return nil
	}

	snap := &cache.Snapshot{
		Version:   cache.SnapshotVersion,
		UpdatedAt: time.Now().UTC(),
	}
	for _, ep := range endpoints {
		models := perEndpoint[ep.Name]
		if len(models) == 0 {
			continue
		}
		// Sort for a stable snapshot file
		sort.Slice(models, func(i, j int) bool {
			return models[i].ID < models[j].ID
		})
		snap.Endpoints = append(snap.Endpoints, cache.CachedEndpoint{
			Name:    ep.Name,
			BaseURL: ep.BaseURL,
			Models:  models,
		})
	}

	if err := store.Set(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Debug("saved models to snapshot", "endpoints", len(snap.Endpoints))
	return nil
}

// InitializeAsync starts model discovery in a background goroutine.
// It first loads any cached models for immediate availability, then
// refreshes from the network. Returns immediately after the cache load.
func (r *Registry) InitializeAsync(ctx context.Context) {
	cached, err := r.LoadFromCache(ctx)
	if err != nil {
		slog.Warn("failed to load models from snapshot", "error", err)
	} else if cached > 0 {
		slog.Info("routing with cached models while refreshing", "cached_models", cached)
	}

	go func() {
		initCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := r.Initialize(initCtx); err != nil {
			slog.Warn("background model discovery failed", "error", err)
			return
		}

		if err := r.SaveToCache(initCtx); err != nil {
			slog.Warn("failed to save models to snapshot", "error", err)
		}
	}()
}

// IsInitialized returns true if at least one successful network fetch has
// completed, as opposed to serving only cached data.
func (r *Registry) IsInitialized() bool {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	return r.initialized
}

// EndpointFor returns the endpoint serving the given model, or nil
func (r *Registry) EndpointFor(modelID string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.models[modelID]; ok {
		return info.Endpoint
	}
	return nil
}

// GetModel returns the model info for the given model ID, or nil
func (r *Registry) GetModel(modelID string) *ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.models[modelID]; ok {
		return info
	}
	return nil
}

// Supports returns true if some endpoint serves the given model
func (r *Registry) Supports(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.models[modelID]
	return ok
}

// ListModels returns all models in the registry, sorted by model ID for
// consistent ordering.
func (r *Registry) ListModels() []core.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]core.Model, 0, len(r.models))
	for _, info := range r.models {
		models = append(models, info.Model)
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models
}

// ModelCount returns the number of registered models
func (r *Registry) ModelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// EndpointCount returns the number of registered endpoints
func (r *Registry) EndpointCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Endpoints returns the registered endpoints in registration order.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := make([]*Endpoint, len(r.endpoints))
	copy(eps, r.endpoints)
	return eps
}

// StartBackgroundRefresh starts a goroutine that periodically refreshes the
// registry. Returns a cancel function to stop the refresh loop.
func (r *Registry) StartBackgroundRefresh(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := r.Refresh(refreshCtx); err != nil {
					slog.Warn("background model refresh failed", "error", err)
				} else {
					if err := r.SaveToCache(refreshCtx); err != nil {
						slog.Warn("failed to save models to snapshot after refresh", "error", err)
					}
				}
				refreshCancel()
			}
		}
	}()

	return cancel
}
