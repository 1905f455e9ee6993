package app

import (
	"context"
	"testing"

	"github.com/tsahiduek/ai-on-eks/config"
)

// testConfig returns a config that needs no files, network, or external
// services.
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Usage.Enabled = false
	cfg.Cache.Type = "none"
	return &cfg
}

func TestNewAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.History.Enabled = true
	cfg.History.Path = ":memory:"

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Router == nil || a.Registry == nil || a.Metrics == nil {
		t.Fatal("expected router, registry, and metrics to be initialized")
	}
	if a.History == nil {
		t.Fatal("expected a history store when history is enabled")
	}
	if got := a.Registry.EndpointCount(); got != 1 {
		t.Errorf("endpoint count = %d, want 1", got)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Second shutdown is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestNewNilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestHistoryDisabled(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.History != nil {
		t.Error("expected nil history store when history is disabled")
	}
}

func TestEnsureRoutingSingleEndpoint(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	// A single endpoint needs no discovery, so this must not touch the
	// network.
	if err := a.EnsureRouting(context.Background()); err != nil {
		t.Fatalf("EnsureRouting: %v", err)
	}
}

func TestUsageReaderDisabled(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, err := a.UsageReader(); err == nil {
		t.Fatal("expected an error when usage tracking is disabled")
	}
}

func TestBuildCacheUnknownType(t *testing.T) {
	if _, err := buildCache(config.CacheConfig{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown cache type")
	}
}
