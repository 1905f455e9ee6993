package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/history"
	"github.com/tsahiduek/ai-on-eks/internal/usage"
)

// runChat sends one chat completion and prints the first choice's message.
// The default output is the message object as JSON; -text prints only the
// content, -stream prints the content deltas as they arrive.
func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		model       = fs.String("model", "", "model ID, e.g. meta-llama/Llama-3-8B (default from config)")
		prompt      = fs.String("prompt", "", `user prompt; "-" reads it from stdin`)
		system      = fs.String("system", "", "optional system message")
		temperature = fs.Float64("temperature", 0, "sampling temperature")
		maxTokens   = fs.Int("max-tokens", 0, "maximum completion tokens")
		stream      = fs.Bool("stream", false, "stream the reply as it is generated")
		textOnly    = fs.Bool("text", false, "print only the reply content")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	seen := flagsSeen(fs)

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		modelID := firstNonEmpty(*model, a.Config.Defaults.Model)
		if modelID == "" {
			return errors.New("a model is required: pass -model or set defaults.model in the config")
		}
		promptText, err := resolvePrompt(*prompt, os.Stdin)
		if err != nil {
			return err
		}
		if promptText == "" {
			return errors.New(`a prompt is required: pass -prompt, or -prompt - to read stdin`)
		}
		if err := a.EnsureRouting(ctx); err != nil {
			return err
		}

		messages := make([]core.Message, 0, 2)
		if *system != "" {
			messages = append(messages, core.Message{Role: core.RoleSystem, Content: *system})
		}
		messages = append(messages, core.Message{Role: core.RoleUser, Content: promptText})

		req := &core.ChatRequest{Model: modelID, Messages: messages}
		if seen["temperature"] {
			req.Temperature = temperature
		} else {
			req.Temperature = a.Config.Defaults.Temperature
		}
		if seen["max-tokens"] {
			req.MaxTokens = maxTokens
		} else {
			req.MaxTokens = a.Config.Defaults.MaxTokens
		}

		if *stream {
			return streamChat(ctx, a, req, promptText)
		}

		requestID := uuid.NewString()
		ctx = core.WithRequestID(ctx, requestID)
		endpoint := a.Router.EndpointName(modelID)

		start := time.Now()
		resp, err := a.Router.ChatCompletion(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			a.Usage.Logger.Write(usage.FromError(err, requestID, endpoint, modelID, usage.OpChat, elapsed))
			return err
		}
		a.Usage.Logger.Write(usage.FromChatResponse(resp, requestID, endpoint, elapsed))

		msg, err := resp.FirstMessage()
		if err != nil {
			return err
		}

		recordChat(ctx, a, &history.Record{
			Endpoint:         endpoint,
			Model:            resp.Model,
			Prompt:           promptText,
			Reply:            msg.Content,
			FinishReason:     resp.Choices[0].FinishReason,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		})

		if *textOnly {
			fmt.Println(msg.Content)
			return nil
		}
		return printJSON(os.Stdout, msg)
	})
}

// streamChat prints content deltas as they arrive, with a final newline
// once the stream ends. Usage is accounted from the raw chunk payloads via
// a stream accountant attached to the reader.
func streamChat(ctx context.Context, a *app.App, req *core.ChatRequest, promptText string) error {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)
	endpoint := a.Router.EndpointName(req.Model)

	start := time.Now()
	stream, err := a.Router.StreamChatCompletion(ctx, req)
	if err != nil {
		a.Usage.Logger.Write(usage.FromError(err, requestID, endpoint, req.Model, usage.OpChat, time.Since(start)))
		return err
	}
	defer stream.Close()

	accountant := usage.NewStreamAccountant(a.Usage.Logger, requestID, endpoint, req.Model)
	stream.SetObserver(accountant.Observe)
	defer accountant.Close()

	var (
		reply  strings.Builder
		finish string
		model  = req.Model
		wrote  bool
	)
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if wrote {
				fmt.Println()
			}
			return err
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				fmt.Print(choice.Delta.Content)
				reply.WriteString(choice.Delta.Content)
				wrote = true
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
	}
	if wrote {
		fmt.Println()
	}

	recordChat(ctx, a, &history.Record{
		Endpoint:     endpoint,
		Model:        model,
		Prompt:       promptText,
		Reply:        reply.String(),
		FinishReason: finish,
	})
	return nil
}

// recordChat appends the exchange to the local history store and, when an
// embeddings model is configured, indexes the prompt for semantic search.
// History is a convenience, so failures are logged and never fatal.
func recordChat(ctx context.Context, a *app.App, rec *history.Record) {
	if a.History == nil {
		return
	}
	if err := a.History.Append(ctx, rec); err != nil {
		slog.Warn("failed to record history", "error", err)
		return
	}

	embedModel := a.Config.History.EmbedModel
	if embedModel == "" {
		return
	}
	vec, err := embedText(ctx, a, embedModel, rec.Prompt)
	if err != nil {
		slog.Warn("failed to embed history record", "id", rec.ID, "error", err)
		return
	}
	if err := a.History.AddEmbedding(ctx, rec.ID, vec); err != nil {
		slog.Warn("failed to index history record", "id", rec.ID, "error", err)
	}
}

// embedText computes one embedding via the configured endpoints and records
// usage for the call.
func embedText(ctx context.Context, a *app.App, model, text string) ([]float32, error) {
	requestID := uuid.NewString()
	ctx = core.WithRequestID(ctx, requestID)
	endpoint := a.Router.EndpointName(model)

	start := time.Now()
	resp, err := a.Router.Embeddings(ctx, &core.EmbeddingsRequest{Model: model, Input: []string{text}})
	elapsed := time.Since(start)
	if err != nil {
		a.Usage.Logger.Write(usage.FromError(err, requestID, endpoint, model, usage.OpEmbeddings, elapsed))
		return nil, err
	}
	a.Usage.Logger.Write(usage.FromEmbeddings(resp, requestID, endpoint, elapsed))

	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
