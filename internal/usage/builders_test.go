package usage

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

func TestFromChatResponse(t *testing.T) {
	resp := &core.ChatResponse{
		ID:    "chatcmpl-1",
		Model: "meta-llama/Llama-3-8B",
		Usage: core.Usage{
			PromptTokens:     9,
			CompletionTokens: 3,
			TotalTokens:      12,
		},
	}

	entry := FromChatResponse(resp, "req-1", "default", 150*time.Millisecond)
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}

	if entry.ID == "" {
		t.Error("entry should have a generated ID")
	}
	if entry.Model != "meta-llama/Llama-3-8B" {
		t.Errorf("unexpected model: %q", entry.Model)
	}
	if entry.Operation != OpChat {
		t.Errorf("expected operation %q, got %q", OpChat, entry.Operation)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
	if entry.PromptTokens != 9 || entry.CompletionTokens != 3 || entry.TotalTokens != 12 {
		t.Errorf("unexpected token counts: %d/%d/%d",
			entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens)
	}
	if entry.DurationNs != (150 * time.Millisecond).Nanoseconds() {
		t.Errorf("unexpected duration: %d", entry.DurationNs)
	}
	if entry.Stream {
		t.Error("non-streaming response should not be marked as stream")
	}

	if got := FromChatResponse(nil, "req-1", "default", 0); got != nil {
		t.Error("nil response should produce nil entry")
	}
}

func TestFromEmbeddings(t *testing.T) {
	resp := &core.EmbeddingsResponse{
		Model: "all-minilm",
		Usage: core.Usage{PromptTokens: 4, TotalTokens: 4},
	}

	entry := FromEmbeddings(resp, "", "default", time.Millisecond)
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}
	if entry.Operation != OpEmbeddings {
		t.Errorf("expected operation %q, got %q", OpEmbeddings, entry.Operation)
	}
	if entry.PromptTokens != 4 {
		t.Errorf("expected 4 prompt tokens, got %d", entry.PromptTokens)
	}
	if entry.CompletionTokens != 0 {
		t.Errorf("embeddings should have no completion tokens, got %d", entry.CompletionTokens)
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantType     string
		wantStatus   int
		wantEndpoint string
	}{
		{
			name: "client error with endpoint",
			err: &core.ClientError{
				Type:       core.ErrorTypeRateLimit,
				Message:    "try again later",
				StatusCode: 429,
				Endpoint:   "backup",
			},
			wantType:     "rate_limit_error",
			wantStatus:   429,
			wantEndpoint: "backup",
		},
		{
			name: "wrapped client error",
			err: errors.Join(errors.New("request failed"), &core.ClientError{
				Type:       core.ErrorTypeServer,
				StatusCode: 503,
			}),
			wantType:     "server_error",
			wantStatus:   503,
			wantEndpoint: "default",
		},
		{
			name:         "plain error falls back to connection",
			err:          errors.New("dial tcp: connection refused"),
			wantType:     "connection_error",
			wantStatus:   0,
			wantEndpoint: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := FromError(tt.err, "req-9", "default", "meta-llama/Llama-3-8B", OpChat, time.Second)
			if entry == nil {
				t.Fatal("expected entry, got nil")
			}
			if entry.ErrorType != tt.wantType {
				t.Errorf("expected error type %q, got %q", tt.wantType, entry.ErrorType)
			}
			if entry.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, entry.StatusCode)
			}
			if entry.Endpoint != tt.wantEndpoint {
				t.Errorf("expected endpoint %q, got %q", tt.wantEndpoint, entry.Endpoint)
			}
			if entry.TotalTokens != 0 {
				t.Errorf("failed request should carry no tokens, got %d", entry.TotalTokens)
			}
		})
	}
}
