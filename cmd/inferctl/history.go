package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/app"
	"github.com/tsahiduek/ai-on-eks/internal/history"
)

// runHistory shows or searches the local conversation log. Actions:
//
//	inferctl history                     recent records
//	inferctl history recent -limit 5
//	inferctl history search "deploy"     substring match
//	inferctl history search "deploy" -semantic
//
// Semantic search embeds the query through the configured endpoint and
// ranks by cosine distance; it needs history.embed_model set.
func runHistory(args []string) error {
	// The action and query are peeled off before flag parsing so flags can
	// follow them, which the plain flag package doesn't do on its own.
	action := "recent"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action = args[0]
		args = args[1:]
	}
	var query string
	if action == "search" && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		query = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		limit    = fs.Int("limit", 20, "maximum records to show")
		semantic = fs.Bool("semantic", false, "rank search results by embedding distance")
		jsonOut  = fs.Bool("json", false, "print records as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		if a.History == nil {
			return errors.New("history is disabled: set history.enabled in the config")
		}

		switch action {
		case "recent":
			recs, err := a.History.Recent(ctx, *limit)
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(os.Stdout, recs)
			}
			printRecords(recs)
			return nil

		case "search":
			if query == "" {
				return errors.New("search needs a query: inferctl history search <text>")
			}
			if *semantic {
				return semanticSearch(ctx, a, query, *limit, *jsonOut)
			}
			recs, err := a.History.Search(ctx, query, *limit)
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(os.Stdout, recs)
			}
			printRecords(recs)
			return nil

		default:
			return fmt.Errorf("unknown history action %q (expected recent or search)", action)
		}
	})
}

func semanticSearch(ctx context.Context, a *app.App, query string, limit int, jsonOut bool) error {
	embedModel := a.Config.History.EmbedModel
	if embedModel == "" {
		return errors.New("semantic search needs history.embed_model in the config")
	}
	if err := a.EnsureRouting(ctx); err != nil {
		return err
	}
	vec, err := embedText(ctx, a, embedModel, query)
	if err != nil {
		return err
	}
	results, err := a.History.SemanticSearch(ctx, vec, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(os.Stdout, results)
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for i, res := range results {
		if i > 0 {
			fmt.Println()
		}
		printRecord(&res.Record, fmt.Sprintf("distance=%.4f", res.Distance))
	}
	return nil
}

func printRecords(recs []*history.Record) {
	if len(recs) == 0 {
		fmt.Println("no history recorded")
		return
	}
	for i, rec := range recs {
		if i > 0 {
			fmt.Println()
		}
		printRecord(rec, "")
	}
}

// printRecord writes one record as a small block:
//
//	[2026-08-24 15:04:05] meta-llama/Llama-3-8B (stop, 14 tokens)
//	  prompt: Hello
//	  reply:  Hi there!
func printRecord(rec *history.Record, note string) {
	meta := make([]string, 0, 2)
	if rec.FinishReason != "" {
		meta = append(meta, rec.FinishReason)
	}
	if total := rec.PromptTokens + rec.CompletionTokens; total > 0 {
		meta = append(meta, fmt.Sprintf("%d tokens", total))
	}
	header := fmt.Sprintf("[%s] %s", rec.CreatedAt.Local().Format(time.DateTime), rec.Model)
	if len(meta) > 0 {
		header += fmt.Sprintf(" (%s)", strings.Join(meta, ", "))
	}
	if note != "" {
		header += " " + note
	}
	fmt.Println(header)
	fmt.Printf("  prompt: %s\n", indentContinuations(rec.Prompt))
	fmt.Printf("  reply:  %s\n", indentContinuations(rec.Reply))
}

// indentContinuations keeps multi-line prompts and replies inside the
// record block by indenting every line after the first.
func indentContinuations(s string) string {
	return strings.ReplaceAll(s, "\n", "\n          ")
}
