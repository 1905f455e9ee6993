package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/core"
	"github.com/tsahiduek/ai-on-eks/internal/usage"
)

// runComplete sends a legacy text completion and prints the first choice's
// text. Kept off the default chat path; some base models only serve
// /v1/completions.
func runComplete(args []string) error {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		model       = fs.String("model", "", "model ID (default from config)")
		prompt      = fs.String("prompt", "", `prompt text; "-" reads it from stdin`)
		temperature = fs.Float64("temperature", 0, "sampling temperature")
		maxTokens   = fs.Int("max-tokens", 0, "maximum completion tokens")
		jsonOut     = fs.Bool("json", false, "print the full first choice as JSON")
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

		req := &core.CompletionRequest{Model: modelID, Prompt: promptText}
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

		requestID := uuid.NewString()
		ctx = core.WithRequestID(ctx, requestID)
		endpoint := a.Router.EndpointName(modelID)

		start := time.Now()
		resp, err := a.Router.Completion(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			a.Usage.Logger.Write(usage.FromError(err, requestID, endpoint, modelID, usage.OpCompletion, elapsed))
			return err
		}
		a.Usage.Logger.Write(usage.FromCompletionResponse(resp, requestID, endpoint, elapsed))

		text, err := resp.FirstText()
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(os.Stdout, resp.Choices[0])
		}
		fmt.Println(text)
		return nil
	})
}
