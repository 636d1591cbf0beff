package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/report"
	"github.com/sells-group/techmap/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect reconciliation run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		input, _ := cmd.Flags().GetString("input")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			InputPath: input,
			Limit:     limit,
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
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		markdown, _ := cmd.Flags().GetBool("markdown")
		if markdown {
			return printRunReport(os.Stdout, run)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, success, success_with_warnings, failure)")
	runsListCmd.Flags().String("input", "", "filter by input path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("markdown", false, "render the stored report as Markdown")

	runsStatsCmd.Flags().Int("limit", 1000, "number of most recent runs to aggregate")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// printRunReport renders the report stored with a finished run.
func printRunReport(out io.Writer, run *model.Run) error {
	if run.Result == nil || len(run.Result.Report) == 0 {
		return eris.Errorf("runs show: run %s has no stored report", run.ID)
	}
	var rep report.StructuredReport
	if err := json.Unmarshal(run.Result.Report, &rep); err != nil {
		return eris.Wrap(err, "runs show: decode report")
	}
	_, err := fmt.Fprint(out, report.Markdown(&rep))
	return err
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINPUT\tSTATUS\tROWS\tMAPPED\tWARN\tERR\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t----\t------\t----\t---\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Millisecond).String()

		input := r.InputPath
		if len(input) > 30 {
			input = "..." + input[len(input)-27:]
		}

		rows, mapped, warn, errs := "-", "-", "-", "-"
		if res := r.Result; res != nil {
			rows = fmt.Sprint(res.InputRows)
			mapped = fmt.Sprint(res.MappedRows)
			warn = fmt.Sprint(res.Warnings)
			errs = fmt.Sprint(res.Errors)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			input,
			r.Status,
			rows,
			mapped,
			warn,
			errs,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total        int
	Success      int
	Warnings     int
	Failure      int
	Running      int
	RowsIn       int
	RowsMapped   int
	AvgDurMillis float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusSuccess:
			s.Success++
		case model.RunStatusSuccessWithWarnings:
			s.Warnings++
		case model.RunStatusFailure:
			s.Failure++
		default:
			s.Running++
			continue
		}
		totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		durCount++
		if r.Result != nil {
			s.RowsIn += r.Result.InputRows
			s.RowsMapped += r.Result.MappedRows
		}
	}

	if durCount > 0 {
		s.AvgDurMillis = float64(totalDur.Milliseconds()) / float64(durCount)
	}
	return s
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Success:\t%d\n", s.Success)
	_, _ = fmt.Fprintf(w, "With warnings:\t%d\n", s.Warnings)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failure)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Rows reconciled:\t%d (%d mapped)\n", s.RowsIn, s.RowsMapped)
	if s.AvgDurMillis > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.0fms\n", s.AvgDurMillis)
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
