// Package batch runs many chat prompts concurrently against the endpoint
// router. Prompts come in as JSONL, one request per line; results go out as
// JSONL in the same order, with per-item errors recorded in their rows
// instead of aborting the run.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/usage"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 4

// maxLineSize bounds one JSONL line; generous enough for long prompts.
const maxLineSize = 1024 * 1024

// Item is one prompt read from the input file.
type Item struct {
	// ID identifies the item in the results. Optional; when absent it is
	// derived from a hash of the model and prompt.
	ID string `json:"id,omitempty"`

	// Model overrides the run's default model for this item.
	Model string `json:"model,omitempty"`

	// Prompt is the user message. Required.
	Prompt string `json:"prompt"`

	// Optional per-item overrides
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Result is one line of the output file.
type Result struct {
	ID           string      `json:"id"`
	Model        string      `json:"model,omitempty"`
	Content      string      `json:"content,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *core.Usage `json:"usage,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Summary reports the outcome of a run.
type Summary struct {
	Items       int
	Succeeded   int
	Failed      int
	TotalTokens int
	Duration    time.Duration
}

// Router is the slice of the endpoint router the runner needs.
type Router interface {
	ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	EndpointName(model string) string
}

// Runner executes batch items over a fixed worker pool.
type Runner struct {
	// Router sends the chat completions. Required.
	Router Router

	// Usage receives one entry per item when set.
	Usage usage.LoggerInterface

	// Concurrency is the worker count; DefaultConcurrency when <= 0.
	Concurrency int

	// DefaultModel is used for items that don't name one.
	DefaultModel string
}

// Run reads JSONL items from r, executes them concurrently, and writes
// JSONL results to w in input order. Per-item request failures are recorded
// in their result rows; Run itself fails only on malformed input, output
// write errors, or context cancellation. On cancellation the rows written
// so far are still flushed, with pending items marked canceled.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (*Summary, error) {
	if r.Router == nil {
		return nil, fmt.Errorf("router is required")
	}

	items, err := r.readItems(in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]Result, len(items))

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.runItem(ctx, items[i])
			}
		}()
	}
	wg.Wait()

	// Items the feeder never handed out keep a zero result; mark them so
	// every input line has an output row.
	for i := range results {
		if results[i].ID == "" {
			results[i] = Result{
				ID:    items[i].ID,
				Model: items[i].Model,
				Error: "canceled before start",
			}
		}
	}

	summary := &Summary{Items: len(items), Duration: time.Since(start)}
	enc := json.NewEncoder(out)
	for i := range results {
		if results[i].Error == "" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if results[i].Usage != nil {
			summary.TotalTokens += results[i].Usage.TotalTokens
		}
		if err := enc.Encode(&results[i]); err != nil {
			return nil, fmt.Errorf("failed to write result %s: %w", results[i].ID, err)
		}
	}

	slog.Info("batch run complete",
		"items", summary.Items,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"total_tokens", summary.TotalTokens,
		"duration", summary.Duration.Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// readItems parses and validates the whole input before any work starts, so
// a typo on line 40 doesn't waste 39 completions.
func (r *Runner) readItems(in io.Reader) ([]Item, error) {
	var items []Item

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		if item.Prompt == "" {
			return nil, fmt.Errorf("line %d: prompt is required", line)
		}
		if item.Model == "" {
			item.Model = r.DefaultModel
		}
		if item.Model == "" {
			return nil, fmt.Errorf("line %d: model is required and no default model is set", line)
		}
		if item.ID == "" {
			item.ID = deriveID(item.Model, item.Prompt)
		}

		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items in input")
	}

	return items, nil
}

func (r *Runner) runItem(ctx context.Context, item Item) Result {
	result := Result{ID: item.ID, Model: item.Model}

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	messages := make([]core.Message, 0, 2)
	if item.System != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: item.System})
	}
	messages = append(messages, core.Message{Role: core.RoleUser, Content: item.Prompt})

	req := &core.ChatRequest{
		Model:       item.Model,
		Messages:    messages,
		Temperature: item.Temperature,
		MaxTokens:   item.MaxTokens,
	}

	start := time.Now()
	resp, err := r.Router.ChatCompletion(ctx, req)
	elapsed := time.Since(start)

	endpoint := r.Router.EndpointName(item.Model)

	if err != nil {
		result.Error = err.Error()
		if r.Usage != nil {
			r.Usage.Write(usage.FromError(err, "", endpoint, item.Model, usage.OpChat, elapsed))
		}
		return result
	}

	result.Model = resp.Model
	u := resp.Usage
	result.Usage = &u

	msg, err := resp.FirstMessage()
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Content = msg.Content
		result.FinishReason = resp.Choices[0].FinishReason
	}

	if r.Usage != nil {
		r.Usage.Write(usage.FromChatResponse(resp, "", endpoint, elapsed))
	}

	return result
}

// deriveID builds a stable item ID from the model and prompt. The NUL
// separator keeps boundary shifts from colliding.
func deriveID(model, prompt string) string {
	h := xxhash.New()
	_, _ = h.WriteString(model)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(prompt)
	return fmt.Sprintf("item-%016x", h.Sum64())
}
