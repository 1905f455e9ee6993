package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/tsahiduek/ai-on-eks/internal/app"
)

// runModels queries every configured endpoint for its model list and prints
// the result. Discovery always goes to the network here; the snapshot cache
// only serves routing.
func runModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	var conn connFlags
	conn.register(fs)
	jsonOut := fs.Bool("json", false, "print the model list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(&conn, func(ctx context.Context, a *app.App) error {
		if err := a.RefreshModels(ctx); err != nil {
			return err
		}
		models := a.Registry.ListModels()

		if *jsonOut {
			return printJSON(os.Stdout, models)
		}
		if len(models) == 0 {
			fmt.Println("no models available")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tENDPOINT\tOWNED BY")
		for _, m := range models {
			endpoint := ""
			if ep := a.Registry.EndpointFor(m.ID); ep != nil {
				endpoint = ep.Name
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, endpoint, m.OwnedBy)
		}
		return w.Flush()
	})
}
