package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

func TestLocalCache(t *testing.T) {
	t.Run("GetSetRoundTrip", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheFile := filepath.Join(tmpDir, "models.json")

		cache := NewLocalCache(cacheFile)
		ctx := context.Background()

		// Initially empty
		result, err := cache.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatalf("expected nil result for empty cache, got %v", result)
		}

		// Set data
		snap := &Snapshot{
			Version:   SnapshotVersion,
			UpdatedAt: time.Now().UTC(),
			Endpoints: []CachedEndpoint{
				{
					Name:    "local",
					BaseURL: "http://localhost:8000/v1",
					Models: []core.Model{
						{ID: "meta-llama/Llama-3-8B", Object: "model", OwnedBy: "vllm", Created: 1700000000},
					},
				},
			},
		}

		err = cache.Set(ctx, snap)
		if err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}

		// Get data back
		result, err = cache.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if result == nil {
			t.Fatal("expected result, got nil")
		}
		if result.Version != SnapshotVersion {
			t.Errorf("expected version %d, got %d", SnapshotVersion, result.Version)
		}
		if len(result.Endpoints) != 1 {
			t.Fatalf("expected 1 endpoint, got %d", len(result.Endpoints))
		}
		if result.Endpoints[0].Name != "local" {
			t.Errorf("expected endpoint local, got %q", result.Endpoints[0].Name)
		}
		if len(result.Endpoints[0].Models) != 1 {
			t.Fatalf("expected 1 model, got %d", len(result.Endpoints[0].Models))
		}
		if result.Endpoints[0].Models[0].ID != "meta-llama/Llama-3-8B" {
			t.Errorf("expected meta-llama/Llama-3-8B, got %q", result.Endpoints[0].Models[0].ID)
		}
	})

	t.Run("CreateDirectoryIfNeeded", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheFile := filepath.Join(tmpDir, "nested", "dir", "models.json")

		cache := NewLocalCache(cacheFile)
		ctx := context.Background()

		snap := &Snapshot{
			Version:   SnapshotVersion,
			Endpoints: []CachedEndpoint{},
		}

		err := cache.Set(ctx, snap)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Verify file was created
		if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
			t.Fatal("snapshot file was not created")
		}
	})

	t.Run("EmptyFilePath", func(t *testing.T) {
		cache := NewLocalCache("")
		ctx := context.Background()

		// Get should return nil
		result, err := cache.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatal("expected nil result for empty path")
		}

		// Set should be a no-op
		snap := &Snapshot{Version: SnapshotVersion}
		err = cache.Set(ctx, snap)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("CloseIsNoOp", func(t *testing.T) {
		cache := NewLocalCache(filepath.Join(t.TempDir(), "test.json"))
		err := cache.Close()
		if err != nil {
			t.Fatalf("unexpected error on close: %v", err)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheFile := filepath.Join(tmpDir, "models.json")

		// Write invalid JSON
		if err := os.WriteFile(cacheFile, []byte("not valid json"), 0o644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}

		cache := NewLocalCache(cacheFile)
		ctx := context.Background()

		_, err := cache.Get(ctx)
		if err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("StaleVersionDiscarded", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheFile := filepath.Join(tmpDir, "models.json")

		stale := &Snapshot{Version: SnapshotVersion + 1}
		data, err := json.Marshal(stale)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(cacheFile, data, 0o644); err != nil {
			t.Fatal(err)
		}

		cache := NewLocalCache(cacheFile)
		result, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatal("expected incompatible snapshot to be discarded")
		}
	})

	t.Run("OverwriteReplacesSnapshot", func(t *testing.T) {
		tmpDir := t.TempDir()
		cacheFile := filepath.Join(tmpDir, "models.json")

		cache := NewLocalCache(cacheFile)
		ctx := context.Background()

		first := &Snapshot{
			Version:   SnapshotVersion,
			Endpoints: []CachedEndpoint{{Name: "a"}},
		}
		if err := cache.Set(ctx, first); err != nil {
			t.Fatal(err)
		}

		second := &Snapshot{
			Version:   SnapshotVersion,
			Endpoints: []CachedEndpoint{{Name: "b"}, {Name: "c"}},
		}
		if err := cache.Set(ctx, second); err != nil {
			t.Fatal(err)
		}

		result, err := cache.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Endpoints) != 2 {
			t.Fatalf("expected 2 endpoints after overwrite, got %d", len(result.Endpoints))
		}
		if result.Endpoints[0].Name != "b" {
			t.Errorf("expected endpoint b, got %q", result.Endpoints[0].Name)
		}

		// No stray temp file left behind.
		if _, err := os.Stat(cacheFile + ".tmp"); !os.IsNotExist(err) {
			t.Error("temp file should not remain after rename")
		}
	})
}

func TestSnapshotSerialization(t *testing.T) {
	original := &Snapshot{
		Version:   SnapshotVersion,
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Endpoints: []CachedEndpoint{
			{
				Name:    "local",
				BaseURL: "http://localhost:8000/v1",
				Models: []core.Model{
					{ID: "meta-llama/Llama-3-8B", Object: "model", OwnedBy: "vllm", Created: 1700000000},
					{ID: "mistralai/Mistral-7B", Object: "model", OwnedBy: "vllm", Created: 1700000001},
				},
			},
			{
				Name:    "gpu-pool",
				BaseURL: "http://gpu-pool:8000/v1",
				Models: []core.Model{
					{ID: "Qwen/Qwen2-72B", Object: "model", OwnedBy: "vllm", Created: 1700000002},
				},
			},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var restored Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if restored.Version != original.Version {
		t.Errorf("version mismatch: got %d, want %d", restored.Version, original.Version)
	}
	if len(restored.Endpoints) != len(original.Endpoints) {
		t.Fatalf("endpoint count mismatch: got %d, want %d", len(restored.Endpoints), len(original.Endpoints))
	}
	if restored.Endpoints[0].Name != "local" {
		t.Errorf("first endpoint name mismatch: got %q", restored.Endpoints[0].Name)
	}
	if len(restored.Endpoints[0].Models) != 2 {
		t.Errorf("first endpoint model count mismatch: got %d, want 2", len(restored.Endpoints[0].Models))
	}
	if restored.Endpoints[1].Models[0].ID != "Qwen/Qwen2-72B" {
		t.Errorf("second endpoint model mismatch: got %q", restored.Endpoints[1].Models[0].ID)
	}
}
