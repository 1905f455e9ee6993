// Package app wires inferctl's components together: configured endpoints,
// the model router, usage accounting, conversation history, and client
// metrics. It owns their lifecycle so commands only deal with ready
// components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/cache"
	"github.com/tsahiduek/ai-on-eks/internal/endpoints"
	"github.com/tsahiduek/ai-on-eks/internal/history"
	"github.com/tsahiduek/ai-on-eks/internal/observability"
	"github.com/tsahiduek/ai-on-eks/internal/usage"
	"github.com/tsahiduek/ai-on-eks/internal/version"
)

// App holds the initialized components of one inferctl invocation.
// The caller must call Shutdown to flush buffers and release resources.
type App struct {
	Config   *config.Config
	Registry *endpoints.Registry
	Router   *endpoints.Router
	Usage    *usage.Result
	History  *history.Store // nil when history is disabled
	Metrics  *observability.Metrics

	cache cache.Cache // owned snapshot cache, closed on shutdown

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates an App with all dependencies initialized. On partial
// failure it closes whatever was already opened and reports both errors.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{Config: cfg}

	// Metrics come first so endpoint clients report into them from their
	// very first request.
	app.Metrics = observability.NewMetrics()
	app.Registry = endpoints.FromConfig(cfg, app.Metrics.Hooks())

	snapshotCache, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("initializing model cache: %w", err)
	}
	if snapshotCache != nil {
		app.cache = snapshotCache
		app.Registry.SetCache(snapshotCache)
	}

	router, err := endpoints.NewRouter(app.Registry)
	if err != nil {
		return nil, app.failInit(fmt.Errorf("creating router: %w", err))
	}
	app.Router = router

	usageResult, err := usage.New(ctx, cfg)
	if err != nil {
		return nil, app.failInit(fmt.Errorf("initializing usage tracking: %w", err))
	}
	app.Usage = usageResult

	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			path = filepath.Join(config.DataDir(), "history.db")
		}
		hist, err := history.New(history.Options{
			Path:       path,
			Dimensions: cfg.History.EmbedDimensions,
		})
		if err != nil {
			return nil, app.failInit(fmt.Errorf("opening history store: %w", err))
		}
		app.History = hist
	}

	// Expose each endpoint's circuit breaker state as a gauge.
	for _, ep := range app.Registry.Endpoints() {
		app.Metrics.WatchCircuit(ep.Name, ep.Client.CircuitState)
	}

	app.logStartupInfo()
	return app, nil
}

// failInit closes the components opened so far and folds any close error
// into the reported one.
func (a *App) failInit(err error) error {
	if closeErr := a.Shutdown(context.Background()); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// EnsureRouting prepares the registry for model routing. Single-endpoint
// setups need nothing; multi-endpoint setups load the cached snapshot
// and fall back to live discovery when the cache has no models.
func (a *App) EnsureRouting(ctx context.Context) error {
	if a.Registry.EndpointCount() <= 1 {
		return nil
	}

	if _, err := a.Registry.LoadFromCache(ctx); err != nil {
		slog.Warn("failed to load model snapshot", "error", err)
	}
	if a.Registry.ModelCount() > 0 {
		return nil
	}

	return a.RefreshModels(ctx)
}

// RefreshModels forces live model discovery on every endpoint and
// refreshes the snapshot cache.
func (a *App) RefreshModels(ctx context.Context) error {
	if err := a.Registry.Initialize(ctx); err != nil {
		return err
	}
	if err := a.Registry.SaveToCache(ctx); err != nil {
		slog.Warn("failed to save model snapshot", "error", err)
	}
	return nil
}

// UsageReader opens read access to recorded usage. Returns an error when
// usage tracking is disabled, since there is no storage to read from.
func (a *App) UsageReader() (usage.Reader, error) {
	if a.Usage == nil || a.Usage.Storage == nil {
		return nil, fmt.Errorf("usage tracking is disabled; enable usage in the config to record requests")
	}
	return usage.NewReader(a.Usage.Storage)
}

// Shutdown tears down components in reverse initialization order:
// history store, usage logger (flushing buffered entries), then the
// snapshot cache. Safe to call more than once.
func (a *App) Shutdown(context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	var errs []error

	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}
	if a.Usage != nil {
		if err := a.Usage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// logStartupInfo records what this invocation is wired to. Kept at debug
// level so normal CLI output stays clean.
func (a *App) logStartupInfo() {
	cfg := a.Config

	storageType := "disabled"
	if cfg.Usage.Enabled {
		storageType = cfg.Usage.Storage.Type
	}

	slog.Debug("inferctl initialized",
		"version", version.Version,
		"endpoints", a.Registry.EndpointCount(),
		"usage_storage", storageType,
		"history_enabled", cfg.History.Enabled,
		"cache", cfg.Cache.Type,
	)
}

// buildCache constructs the model snapshot cache from configuration.
// Type "none" disables caching entirely.
func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "", "local":
		return cache.NewLocalCache(filepath.Join(config.DataDir(), "models.json")), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Redis.URL,
			Key: cfg.Redis.Key,
			TTL: time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}
