package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

// Prompts with special meaning, used by tests to drive failure paths.
const (
	// errorPrefix makes the server answer with the given HTTP status:
	// the prompt "error:429" returns a rate limit error.
	errorPrefix = "error:"
	// emptyChoicesPrompt makes the server return 200 with an empty
	// choices list, which clients must surface as an error.
	emptyChoicesPrompt = "empty-choices"
)

// Handler serves the OpenAI-compatible routes.
type Handler struct {
	gen     *Generator
	model   string
	latency time.Duration
	started int64
}

// NewHandler creates a handler around the given generator. model is the
// ID advertised by /v1/models; latency delays every API response.
func NewHandler(gen *Generator, model string, latency time.Duration) *Handler {
	return &Handler{
		gen:     gen,
		model:   model,
		latency: latency,
		started: time.Now().Unix(),
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	if err := h.delay(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &core.ModelsResponse{
		Object: "list",
		Data: []core.Model{
			{ID: h.model, Object: "model", OwnedBy: "vllm", Created: h.started},
		},
	})
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Model == "" {
		return errorJSON(c, http.StatusBadRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return errorJSON(c, http.StatusBadRequest, "messages must not be empty")
	}
	if err := h.delay(c.Request().Context()); err != nil {
		return err
	}

	prompt := lastUserMessage(req.Messages)
	if status, ok := errorTrigger(prompt); ok {
		return errorJSON(c, status, fmt.Sprintf("forced error %d", status))
	}

	id := h.gen.ResponseID("chatcmpl", prompt)
	created := time.Now().Unix()

	if strings.TrimSpace(prompt) == emptyChoicesPrompt {
		return c.JSON(http.StatusOK, &core.ChatResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   req.Model,
			Choices: []core.Choice{},
		})
	}

	text, finish := TruncateTokens(h.gen.Reply(prompt), req.MaxTokens)
	usage := core.Usage{
		PromptTokens:     promptTokens(req.Messages),
		CompletionTokens: CountTokens(text),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	if req.Stream {
		return h.streamChat(c, id, req.Model, text, finish, usage)
	}

	return c.JSON(http.StatusOK, &core.ChatResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   req.Model,
		Choices: []core.Choice{
			{Index: 0, Message: core.Message{Role: core.RoleAssistant, Content: text}, FinishReason: finish},
		},
		Usage: usage,
	})
}

// streamChat writes the SSE chunk script a vLLM server produces: a role
// chunk, one chunk per token, a finish chunk carrying usage, then the
// [DONE] sentinel.
func (h *Handler) streamChat(c echo.Context, id, model, text, finish string, usage core.Usage) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	created := time.Now().Unix()
	chunk := func(choice core.ChunkChoice, usage *core.Usage) core.ChatCompletionChunk {
		return core.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []core.ChunkChoice{choice},
			Usage:   usage,
		}
	}

	// Write errors mean the client went away; nothing useful can be
	// returned after the headers are sent.
	if err := writeChunk(c, chunk(core.ChunkChoice{Delta: core.Delta{Role: core.RoleAssistant}}, nil)); err != nil {
		return nil
	}
	for i, tok := range strings.Fields(text) {
		if i > 0 {
			tok = " " + tok
		}
		if err := writeChunk(c, chunk(core.ChunkChoice{Delta: core.Delta{Content: tok}}, nil)); err != nil {
			return nil
		}
	}
	if err := writeChunk(c, chunk(core.ChunkChoice{FinishReason: finish}, &usage)); err != nil {
		return nil
	}
	fmt.Fprint(c.Response(), "data: [DONE]\n\n")
	c.Response().Flush()
	return nil
}

// writeChunk marshals one chunk as an SSE data line and flushes it.
func writeChunk(c echo.Context, chunk core.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// Completion handles POST /v1/completions
func (h *Handler) Completion(c echo.Context) error {
	var req core.CompletionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Model == "" {
		return errorJSON(c, http.StatusBadRequest, "model is required")
	}
	if req.Prompt == "" {
		return errorJSON(c, http.StatusBadRequest, "prompt is required")
	}
	if err := h.delay(c.Request().Context()); err != nil {
		return err
	}

	if status, ok := errorTrigger(req.Prompt); ok {
		return errorJSON(c, status, fmt.Sprintf("forced error %d", status))
	}

	id := h.gen.ResponseID("cmpl", req.Prompt)
	created := time.Now().Unix()

	if strings.TrimSpace(req.Prompt) == emptyChoicesPrompt {
		return c.JSON(http.StatusOK, &core.CompletionResponse{
			ID:      id,
			Object:  "text_completion",
			Created: created,
			Model:   req.Model,
			Choices: []core.CompletionChoice{},
		})
	}

	text, finish := TruncateTokens(h.gen.Reply(req.Prompt), req.MaxTokens)
	usage := core.Usage{
		PromptTokens:     CountTokens(req.Prompt),
		CompletionTokens: CountTokens(text),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return c.JSON(http.StatusOK, &core.CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   req.Model,
		Choices: []core.CompletionChoice{
			{Index: 0, Text: text, FinishReason: finish},
		},
		Usage: usage,
	})
}

// Embeddings handles POST /v1/embeddings
func (h *Handler) Embeddings(c echo.Context) error {
	var req core.EmbeddingsRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Model == "" {
		return errorJSON(c, http.StatusBadRequest, "model is required")
	}
	if len(req.Input) == 0 {
		return errorJSON(c, http.StatusBadRequest, "input must not be empty")
	}
	if err := h.delay(c.Request().Context()); err != nil {
		return err
	}

	tokens := 0
	data := make([]core.Embedding, len(req.Input))
	for i, input := range req.Input {
		data[i] = core.Embedding{Object: "embedding", Index: i, Embedding: h.gen.Embedding(input)}
		tokens += CountTokens(input)
	}

	return c.JSON(http.StatusOK, &core.EmbeddingsResponse{
		Object: "list",
		Model:  req.Model,
		Data:   data,
		Usage:  core.Usage{PromptTokens: tokens, TotalTokens: tokens},
	})
}

// delay sleeps for the configured artificial latency, bailing out early
// when the request context is canceled.
func (h *Handler) delay(ctx context.Context) error {
	if h.latency <= 0 {
		return nil
	}
	t := time.NewTimer(h.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// lastUserMessage returns the content of the most recent user message,
// which is what the generator treats as the prompt.
func lastUserMessage(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func promptTokens(messages []core.Message) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(m.Content)
	}
	return total
}

// errorTrigger reports whether the prompt requests a forced HTTP error,
// e.g. "error:503".
func errorTrigger(prompt string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(prompt), errorPrefix)
	if !ok {
		return 0, false
	}
	status, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || status < 400 || status > 599 {
		return 0, false
	}
	return status, true
}

// errorJSON writes an OpenAI-style error body for the given status.
func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"type":    errorType(status),
			"message": message,
		},
	})
}

// errorType maps an HTTP status onto the OpenAI error type taxonomy.
func errorType(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "authentication_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}
