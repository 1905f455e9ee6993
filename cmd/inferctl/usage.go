package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/app"
)

// runUsage reports per-model token totals from the usage store.
func runUsage(args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	var (
		since   = fs.Duration("since", 24*time.Hour, "aggregation window, e.g. 1h, 24h, 168h (0 for all time)")
		jsonOut = fs.Bool("json", false, "print totals as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		reader, err := a.UsageReader()
		if err != nil {
			return err
		}

		var cutoff time.Time
		if *since > 0 {
			cutoff = time.Now().Add(-*since)
		}
		totals, err := reader.Totals(ctx, cutoff)
		if err != nil {
			return err
		}

		if *jsonOut {
			return printJSON(os.Stdout, totals)
		}
		if len(totals) == 0 {
			fmt.Println("no usage recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL\tERRORS")
		for _, t := range totals {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				t.Model, t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens, t.Errors)
		}
		return w.Flush()
	})
}
