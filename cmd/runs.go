package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect enrichment run history",
	Long:  "Commands for listing and viewing persisted enrichment runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Mode:  model.RunMode(mode),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if run == nil {
			return eris.Errorf("run %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs logs --

var runsLogsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Show the pipeline log of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.ListLogs(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs logs")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, ev := range logs {
			data := ""
			if len(ev.Data) > 0 {
				b, _ := json.Marshal(ev.Data)
				data = string(b)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.Timestamp.Format("15:04:05"), ev.Level, ev.Context, ev.Message, data)
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().String("mode", "", "filter by run mode (samples, full)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLogsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tPROCESSED\tENRICHED\tSKIPPED\tFAILED\tTOKENS\tCOST\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t----\t---------\t--------\t-------\t------\t------\t----\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\t%s\n",
			truncateID(r.ID),
			r.Mode,
			r.Processed,
			r.Enriched,
			r.Skipped,
			r.Failed,
			r.TokensUsed,
			r.CostEstimate,
			r.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
