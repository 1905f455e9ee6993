package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/cache"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
	"github.com/tsahiduek/ai-on-eks/internal/vllm"
)

// fakeServer serves /v1/models and /v1/chat/completions for the given model
// IDs, counting chat hits.
func fakeServer(t *testing.T, name string, chatHits *atomic.Int32, models ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			resp := core.ModelsResponse{Object: "list"}
			for _, id := range models {
				resp.Data = append(resp.Data, core.Model{ID: id, Object: "model", OwnedBy: "vllm"})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/v1/chat/completions":
			if chatHits != nil {
				chatHits.Add(1)
			}
			_ = json.NewEncoder(w).Encode(core.ChatResponse{
				ID:     "chatcmpl-" + name,
				Object: "chat.completion",
				Model:  models[0],
				Choices: []core.Choice{{
					Message:      core.Message{Role: core.RoleAssistant, Content: "from " + name},
					FinishReason: "stop",
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func fastClient(name, baseURL string) *vllm.Client {
	return vllm.NewWithConfig("token", llmclient.Config{
		EndpointName:   name,
		BaseURL:        baseURL,
		MaxRetries:     0,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	})
}

func fakeEndpoint(t *testing.T, name string, chatHits *atomic.Int32, models ...string) *Endpoint {
	t.Helper()
	server := fakeServer(t, name, chatHits, models...)
	return NewEndpoint(name, fastClient(name, server.URL+"/v1"))
}

func TestRegistry_Initialize(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-1", "model-2"))
	reg.Register(fakeEndpoint(t, "b", nil, "model-3"))

	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := reg.ModelCount(); got != 3 {
		t.Errorf("ModelCount() = %d, want 3", got)
	}
	if !reg.IsInitialized() {
		t.Error("IsInitialized() = false, want true")
	}

	ep := reg.EndpointFor("model-3")
	if ep == nil || ep.Name != "b" {
		t.Errorf("EndpointFor(model-3) = %v, want endpoint b", ep)
	}

	info := reg.GetModel("model-1")
	if info == nil || info.Endpoint.Name != "a" || info.Model.ID != "model-1" {
		t.Errorf("GetModel(model-1) = %+v, want model-1 on endpoint a", info)
	}
	if info := reg.GetModel("no-such-model"); info != nil {
		t.Errorf("GetModel(no-such-model) = %+v, want nil", info)
	}

	models := reg.ListModels()
	if len(models) != 3 {
		t.Fatalf("len(ListModels()) = %d, want 3", len(models))
	}
	// Sorted by ID
	if models[0].ID != "model-1" || models[2].ID != "model-3" {
		t.Errorf("ListModels() order = %v, want sorted by ID", models)
	}
}

func TestRegistry_Initialize_FirstEndpointWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "first", nil, "shared-model"))
	reg.Register(fakeEndpoint(t, "second", nil, "shared-model"))

	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ep := reg.EndpointFor("shared-model")
	if ep == nil || ep.Name != "first" {
		t.Errorf("EndpointFor(shared-model) = %v, want endpoint first", ep)
	}
	if got := reg.ModelCount(); got != 1 {
		t.Errorf("ModelCount() = %d, want 1", got)
	}
}

func TestRegistry_Initialize_AllEndpointsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := NewRegistry()
	reg.Register(NewEndpoint("down", fastClient("down", server.URL+"/v1")))

	if err := reg.Initialize(context.Background()); err == nil {
		t.Fatal("expected error when all endpoints fail")
	}
	if reg.IsInitialized() {
		t.Error("IsInitialized() = true after failed init, want false")
	}
}

func TestRegistry_Initialize_EmptyModelLists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	reg := NewRegistry()
	reg.Register(NewEndpoint("empty", fastClient("empty", server.URL+"/v1")))

	if err := reg.Initialize(context.Background()); err == nil {
		t.Fatal("expected error when endpoints return no models")
	}
}

func TestRegistry_SnapshotRoundTrip(t *testing.T) {
	store := cache.NewLocalCache(filepath.Join(t.TempDir(), "models.json"))
	ctx := context.Background()

	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-1", "model-2"))
	reg.SetCache(store)

	if err := reg.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := reg.SaveToCache(ctx); err != nil {
		t.Fatalf("SaveToCache() error = %v", err)
	}

	// A fresh registry with the same endpoint name restores the mapping
	// without any network fetch.
	restored := NewRegistry()
	restored.Register(fakeEndpoint(t, "a", nil, "model-1", "model-2"))
	restored.SetCache(store)

	n, err := restored.LoadFromCache(ctx)
	if err != nil {
		t.Fatalf("LoadFromCache() error = %v", err)
	}
	if n != 2 {
		t.Errorf("LoadFromCache() = %d models, want 2", n)
	}
	if ep := restored.EndpointFor("model-2"); ep == nil || ep.Name != "a" {
		t.Errorf("EndpointFor(model-2) = %v, want endpoint a", ep)
	}
	// A cache load alone does not mark the registry as network-initialized.
	if restored.IsInitialized() {
		t.Error("IsInitialized() = true after cache load, want false")
	}

	// Snapshots for endpoints that are no longer configured are skipped.
	renamed := NewRegistry()
	renamed.Register(fakeEndpoint(t, "other", nil, "model-1"))
	renamed.SetCache(store)

	n, err = renamed.LoadFromCache(ctx)
	if err != nil {
		t.Fatalf("LoadFromCache() error = %v", err)
	}
	if n != 0 {
		t.Errorf("LoadFromCache() = %d models for unknown endpoint, want 0", n)
	}
}

func TestRegistry_LoadFromCache_NoStore(t *testing.T) {
	reg := NewRegistry()
	n, err := reg.LoadFromCache(context.Background())
	if err != nil {
		t.Fatalf("LoadFromCache() error = %v", err)
	}
	if n != 0 {
		t.Errorf("LoadFromCache() = %d, want 0 without a store", n)
	}
}

func TestRegistry_InitializeAsync(t *testing.T) {
	store := cache.NewLocalCache(filepath.Join(t.TempDir(), "models.json"))
	ctx := context.Background()

	// Seed the snapshot.
	seed := NewRegistry()
	seed.Register(fakeEndpoint(t, "a", nil, "model-1"))
	seed.SetCache(store)
	if err := seed.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := seed.SaveToCache(ctx); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-1"))
	reg.SetCache(store)

	reg.InitializeAsync(ctx)

	// Cached models are available immediately.
	if got := reg.ModelCount(); got != 1 {
		t.Errorf("ModelCount() right after InitializeAsync = %d, want 1", got)
	}

	// The background fetch eventually completes.
	deadline := time.Now().Add(2 * time.Second)
	for !reg.IsInitialized() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !reg.IsInitialized() {
		t.Error("IsInitialized() = false after background init deadline")
	}
}

func TestRegistry_StartBackgroundRefresh(t *testing.T) {
	var fetches atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			fetches.Add(1)
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"m","object":"model"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := NewRegistry()
	reg.Register(NewEndpoint("a", fastClient("a", server.URL+"/v1")))

	cancel := reg.StartBackgroundRefresh(20 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for fetches.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if got := fetches.Load(); got < 2 {
		t.Errorf("fetches = %d, want at least 2 refreshes", got)
	}

	// After cancel at most one in-flight refresh may still land.
	settled := fetches.Load()
	time.Sleep(60 * time.Millisecond)
	if got := fetches.Load(); got > settled+1 {
		t.Errorf("fetches kept growing after cancel: %d -> %d", settled, got)
	}
}
