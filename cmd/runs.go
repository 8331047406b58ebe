package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/monitoring"
	"github.com/sells-group/catalyst-cli/internal/pipeline"
	"github.com/sells-group/catalyst-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect batch run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
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
	Short: "Print a run's report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON || len(run.Report) == 0 {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		var rep pipeline.Report
		if err := json.Unmarshal(run.Report, &rep); err != nil {
			return eris.Wrap(err, "runs show: decode report")
		}
		fmt.Fprintf(os.Stdout, "Status: %s\n", run.Status)
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "Error: %s\n", run.Error)
		}
		fmt.Fprint(os.Stdout, pipeline.FormatReport(&rep))
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize run health over a lookback window and evaluate alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*monitoring.Snapshot
				Alerts []monitoring.Alert `json:"alerts"`
			}{snap, alerts})
		}
		formatRunStats(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	runsStatsCmd.Flags().Int("hours", 0, "lookback window in hours (default monitoring.lookback_window_hours)")
	runsStatsCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	runsCmd.AddCommand(runsStatsCmd)

	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed, canceled)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsShowCmd.Flags().Bool("json", false, "print the raw run record")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSESSIONS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.SourceType,
			r.Status,
			r.Sessions,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

func formatRunStats(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	_, _ = fmt.Fprintf(out, "Runs in last %dh: %d (complete %d, failed %d, canceled %d, running %d)\n",
		snap.LookbackHours, snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsCanceled, snap.RunsRunning)
	_, _ = fmt.Fprintf(out, "Failure rate: %.1f%%\n", snap.RunFailRate*100)
	_, _ = fmt.Fprintf(out, "Sessions: %d  New: %d  Updated: %d\n", snap.Sessions, snap.NewCatalysts, snap.Updated)
	_, _ = fmt.Fprintf(out, "Session errors: %d\n", snap.SessionErrors)

	kinds := make([]string, 0, len(snap.ErrorsByKind))
	for k := range snap.ErrorsByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(out, "  %-15s %d\n", k, snap.ErrorsByKind[model.ErrorKind(k)])
	}
	_, _ = fmt.Fprintf(out, "Cost: $%.4f\n", snap.CostUSD)

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "Alerts: none")
		return
	}
	_, _ = fmt.Fprintln(out, "Alerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
	}
}
