//go:build e2e

package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
	"github.com/tsahiduek/ai-on-eks/internal/vllm"
)

// newClient returns a vLLM client pointed at the mock server.
func newClient(t *testing.T) *vllm.Client {
	t.Helper()
	c := vllm.New(apiKey, llmclient.Hooks{})
	c.SetBaseURL(serverURL + "/v1")
	return c
}

// newApp builds a full application wired to the mock server, with usage and
// history on SQLite files under the test's temp dir.
func newApp(t *testing.T) *app.App {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Endpoint.BaseURL = serverURL + "/v1"
	cfg.Endpoint.APIKey = apiKey
	cfg.Cache.Type = "none"
	cfg.Usage.Enabled = true
	cfg.Usage.Storage.Type = "sqlite"
	cfg.Usage.Storage.SQLite.Path = filepath.Join(dir, "usage.db")
	cfg.Usage.FlushIntervalSeconds = 1
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(dir, "history.db")

	a, err := app.New(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

// chatRequest builds a single-turn chat request for the mock model.
func chatRequest(prompt string) *core.ChatRequest {
	return &core.ChatRequest{
		Model:    testModel,
		Messages: []core.Message{{Role: core.RoleUser, Content: prompt}},
	}
}
