package endpoints

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
)

func TestNewRouter_NilRegistry(t *testing.T) {
	if _, err := NewRouter(nil); err == nil {
		t.Error("expected error for nil registry")
	}
}

func TestRouter_SingleEndpointFastPath(t *testing.T) {
	var hits atomic.Int32

	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "only", &hits, "meta-llama/Llama-3-8B"))

	router, err := NewRouter(reg)
	if err != nil {
		t.Fatal(err)
	}

	// No Initialize, no cache load: a single endpoint routes directly.
	resp, err := router.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "meta-llama/Llama-3-8B",
		Messages: []core.Message{{Role: core.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	msg, err := resp.FirstMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "from only" {
		t.Errorf("content = %q, want %q", msg.Content, "from only")
	}
	if hits.Load() != 1 {
		t.Errorf("endpoint hits = %d, want 1", hits.Load())
	}
	if !router.Supports("any-model-at-all") {
		t.Error("Supports() = false, want true with a single endpoint")
	}
	if name := router.EndpointName("any-model"); name != "only" {
		t.Errorf("EndpointName() = %q, want only", name)
	}
}

func TestRouter_MultiEndpoint_RoutesByModel(t *testing.T) {
	var hitsA, hitsB atomic.Int32

	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", &hitsA, "model-a"))
	reg.Register(fakeEndpoint(t, "b", &hitsB, "model-b"))
	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	router, err := NewRouter(reg)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := router.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "model-b",
		Messages: []core.Message{{Role: core.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	msg, _ := resp.FirstMessage()
	if msg.Content != "from b" {
		t.Errorf("content = %q, want %q", msg.Content, "from b")
	}
	if hitsA.Load() != 0 {
		t.Errorf("endpoint a hits = %d, want 0", hitsA.Load())
	}
	if hitsB.Load() != 1 {
		t.Errorf("endpoint b hits = %d, want 1", hitsB.Load())
	}
	if name := router.EndpointName("model-a"); name != "a" {
		t.Errorf("EndpointName(model-a) = %q, want a", name)
	}
}

func TestRouter_MultiEndpoint_UnknownModel(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-a"))
	reg.Register(fakeEndpoint(t, "b", nil, "model-b"))
	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	router, err := NewRouter(reg)
	if err != nil {
		t.Fatal(err)
	}

	_, err = router.For("missing-model")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !strings.Contains(err.Error(), "missing-model") {
		t.Errorf("error = %v, want model name included", err)
	}
	var cerr *core.ClientError
	if !errors.As(err, &cerr) || cerr.Type != core.ErrorTypeNotFound {
		t.Errorf("error = %v, want not_found_error", err)
	}
	if router.Supports("missing-model") {
		t.Error("Supports(missing-model) = true, want false")
	}
}

func TestRouter_MultiEndpoint_NotInitialized(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-a"))
	reg.Register(fakeEndpoint(t, "b", nil, "model-b"))

	router, err := NewRouter(reg)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := router.For("model-a"); !errors.Is(err, ErrRegistryNotInitialized) {
		t.Errorf("For() error = %v, want ErrRegistryNotInitialized", err)
	}
	if _, err := router.ListModels(context.Background()); !errors.Is(err, ErrRegistryNotInitialized) {
		t.Errorf("ListModels() error = %v, want ErrRegistryNotInitialized", err)
	}
}

func TestRouter_ListModels(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeEndpoint(t, "a", nil, "model-2", "model-1"))
	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	router, err := NewRouter(reg)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := router.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if resp.Object != "list" {
		t.Errorf("Object = %q, want list", resp.Object)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].ID != "model-1" {
		t.Errorf("Data[0].ID = %q, want model-1 (sorted)", resp.Data[0].ID)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Endpoint.APIKey = "primary-key"
	cfg.Endpoints = map[string]config.EndpointConfig{
		"gpu-pool": {Name: "gpu-pool", BaseURL: "http://gpu-pool:8000/v1", APIKey: "pool-key"},
		"backup":   {Name: "backup", Port: "9000"},
	}

	reg := FromConfig(&cfg, llmclient.Hooks{})

	if got := reg.EndpointCount(); got != 3 {
		t.Fatalf("EndpointCount() = %d, want 3", got)
	}

	eps := reg.Endpoints()
	if eps[0].Name != "local" {
		t.Errorf("first endpoint = %q, want local (primary first)", eps[0].Name)
	}
	// Named endpoints follow in sorted name order.
	if eps[1].Name != "backup" || eps[2].Name != "gpu-pool" {
		t.Errorf("named endpoints = %q, %q, want backup, gpu-pool", eps[1].Name, eps[2].Name)
	}

	if eps[1].BaseURL != "http://localhost:9000/v1" {
		t.Errorf("backup BaseURL = %q, want http://localhost:9000/v1", eps[1].BaseURL)
	}
	if eps[2].BaseURL != "http://gpu-pool:8000/v1" {
		t.Errorf("gpu-pool BaseURL = %q, want http://gpu-pool:8000/v1", eps[2].BaseURL)
	}
}

func TestFromConfig_SkipsDuplicateOfPrimary(t *testing.T) {
	cfg := config.Defaults()
	cfg.Endpoints = map[string]config.EndpointConfig{
		cfg.Endpoint.Name: {Name: cfg.Endpoint.Name, Port: "9999"},
	}

	reg := FromConfig(&cfg, llmclient.Hooks{})
	if got := reg.EndpointCount(); got != 1 {
		t.Errorf("EndpointCount() = %d, want 1 (primary not duplicated)", got)
	}
}
