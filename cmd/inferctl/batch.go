package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/batch"
)

// runBatch executes a JSONL file of prompts concurrently and writes one
// JSONL result row per item, in input order. Per-item failures land in
// their result rows; the command still exits non-zero when any item failed
// so scripts notice.
func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		inPath      = fs.String("in", "", `input JSONL file; "-" reads stdin`)
		outPath     = fs.String("out", "", `output JSONL file; "-" or empty writes stdout`)
		concurrency = fs.Int("concurrency", batch.DefaultConcurrency, "number of parallel requests")
		model       = fs.String("model", "", "default model for items that don't name one")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		if *inPath == "" {
			return errors.New(`an input file is required: pass -in, or -in - to read stdin`)
		}
		if err := a.EnsureRouting(ctx); err != nil {
			return err
		}

		var in io.Reader = os.Stdin
		if *inPath != "-" {
			f, err := os.Open(*inPath)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()
			in = f
		}

		var out io.Writer = os.Stdout
		var outFile *os.File
		if *outPath != "" && *outPath != "-" {
			f, err := os.Create(*outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			outFile = f
			out = f
		}

		runner := &batch.Runner{
			Router:       a.Router,
			Usage:        a.Usage.Logger,
			Concurrency:  *concurrency,
			DefaultModel: firstNonEmpty(*model, a.Config.Defaults.Model),
		}
		summary, runErr := runner.Run(ctx, in, out)

		if outFile != nil {
			if err := outFile.Close(); err != nil && runErr == nil {
				runErr = fmt.Errorf("failed to flush output: %w", err)
			}
		}
		if runErr != nil {
			return runErr
		}

		slog.Info("batch finished",
			"items", summary.Items,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"total_tokens", summary.TotalTokens,
			"duration", summary.Duration.Round(time.Millisecond),
		)
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Items)
		}
		return nil
	})
}
