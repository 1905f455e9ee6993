package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tsahiduek/ai-on-eks/internal/app"
)

// previewValues is how many vector components the plain output shows.
const previewValues = 5

// runEmbed computes an embedding for one input text. The plain output shows
// the dimension count and the first few values; -json prints the full
// embedding object.
func runEmbed(args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		model   = fs.String("model", "", "embeddings model ID (default from config)")
		input   = fs.String("input", "", `text to embed; "-" reads it from stdin`)
		jsonOut = fs.Bool("json", false, "print the full embedding as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		modelID := firstNonEmpty(*model, a.Config.History.EmbedModel, a.Config.Defaults.Model)
		if modelID == "" {
			return errors.New("a model is required: pass -model or set defaults.model in the config")
		}
		inputText, err := resolvePrompt(*input, os.Stdin)
		if err != nil {
			return err
		}
		if inputText == "" {
			return errors.New(`an input is required: pass -input, or -input - to read stdin`)
		}
		if err := a.EnsureRouting(ctx); err != nil {
			return err
		}

		vec, err := embedText(ctx, a, modelID, inputText)
		if err != nil {
			return err
		}

		if *jsonOut {
			return printJSON(os.Stdout, vec)
		}
		fmt.Println(formatVector(vec))
		return nil
	})
}

// formatVector renders "384 dims [0.042271, -0.013956, ...]".
func formatVector(vec []float32) string {
	preview := vec
	truncated := false
	if len(preview) > previewValues {
		preview = preview[:previewValues]
		truncated = true
	}
	parts := make([]string, len(preview))
	for i, v := range preview {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 6, 32)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d dims [%s", len(vec), strings.Join(parts, ", "))
	if truncated {
		b.WriteString(", ...")
	}
	b.WriteString("]")
	return b.String()
}
