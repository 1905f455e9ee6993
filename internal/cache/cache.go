// Package cache provides a cache abstraction for discovered model lists.
// Supports both local file and Redis backends so several CLI invocations
// (or hosts) can share one discovery snapshot.
package cache

import (
	"context"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

// SnapshotVersion is bumped when the snapshot layout changes; older
// snapshots are discarded on load.
const SnapshotVersion = 1

// Snapshot is the cached view of every known endpoint and the models it
// served at discovery time.
type Snapshot struct {
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Endpoints []CachedEndpoint `json:"endpoints"`
}

// CachedEndpoint records one endpoint's discovered model list.
type CachedEndpoint struct {
	Name    string       `json:"name"`
	BaseURL string       `json:"base_url"`
	Models  []core.Model `json:"models"`
}

// Cache defines the interface for snapshot storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the snapshot.
	// Returns nil, nil if no snapshot exists yet.
	Get(ctx context.Context) (*Snapshot, error)

	// Set stores the snapshot.
	Set(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the cache.
	Close() error
}
