package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/techmap/internal/costfile"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/pipeline"
	"github.com/sells-group/techmap/internal/publish"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <input>",
	Short: "Rewrite storage-technology names to their canonical form",
	Long: "Reads a cost table (CSV, TSV or XLSX), maps storage-technology names onto the registry's canonical names, " +
		"validates that nothing else changed, and writes the result with a JSON and Markdown report. " +
		"A failed run writes only the report and exits non-zero.",
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

// tablePublisher is the part of publish.Publisher the reconcile sink uses.
type tablePublisher interface {
	EnsureTable(ctx context.Context) error
	Publish(ctx context.Context, runID string, status model.RunStatus, records []model.TechnologyRecord) (int64, error)
}

var _ tablePublisher = (*publish.Publisher)(nil)

func init() {
	reconcileCmd.Flags().StringP("output", "o", "", "output path (default <input>_canonical.<ext>)")
	reconcileCmd.Flags().String("report-dir", "", "directory for the run report (default: output directory)")
	reconcileCmd.Flags().Int("workers", 1, "classification workers")
	reconcileCmd.Flags().String("duplicate-policy", "warn", "what duplicate keys after mapping do to the run: warn or fail")
	reconcileCmd.Flags().Bool("dry-run", false, "reconcile and report without writing the output table")
	reconcileCmd.Flags().Bool("publish", false, "also replace the Postgres cost table with the output")
	rootCmd.AddCommand(reconcileCmd)
}

// outputSink publishes (when pub is set) and then writes the output file. A
// failed publish leaves no file behind and keeps the previous output.
func outputSink(outputPath string, opts costfile.Options, pub tablePublisher) pipeline.Sink {
	return func(ctx context.Context, runID string, status model.RunStatus, output model.Dataset) error {
		if pub != nil {
			if runID == "" {
				runID = uuid.NewString()
			}
			if err := pub.EnsureTable(ctx); err != nil {
				return err
			}
			if _, err := pub.Publish(ctx, runID, status, output.Records); err != nil {
				return err
			}
		}

		if err := costfile.Write(outputPath, output, opts); err != nil {
			return err
		}
		zap.L().Info("reconcile: output written", zap.String("path", outputPath))
		return nil
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inputPath := args[0]

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	ioOpts, err := costfileOptions()
	if err != nil {
		return err
	}
	recOpts, err := reconcileOptions(cmd)
	if err != nil {
		return err
	}

	in, err := costfile.Read(ctx, inputPath, ioOpts)
	if err != nil {
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = defaultOutputPath(inputPath)
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	doPublish, _ := cmd.Flags().GetBool("publish")

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	var pub tablePublisher
	if doPublish && !dryRun {
		p, closeFn, pubErr := openPublisher(ctx, "")
		if pubErr != nil {
			return pubErr
		}
		defer closeFn()
		pub = p
	}

	var sink pipeline.Sink
	if !dryRun {
		sink = outputSink(outputPath, ioOpts, pub)
	}

	req := pipeline.Request{Input: in, InputPath: inputPath, Sink: sink}
	if !dryRun {
		req.OutputPath = outputPath
	}
	out, err := pipeline.New(reg, st, recOpts...).Run(ctx, req)
	if err != nil {
		return err
	}

	reportDir, _ := cmd.Flags().GetString("report-dir")
	if reportDir == "" {
		reportDir = cfg.Output.ReportDir
	}
	if reportDir == "" {
		reportDir = filepath.Dir(outputPath)
	}
	jsonPath, mdPath, err := writeReports(reportDir, fileStem(outputPath), out.Report)
	if err != nil {
		return err
	}

	written := ""
	if out.Output != nil && !dryRun {
		written = outputPath
	}
	formatOutcome(os.Stdout, out, written, jsonPath, mdPath)

	if out.Status == model.RunStatusFailure {
		return eris.Errorf("reconcile: run failed, output not written (see %s)", mdPath)
	}
	return nil
}

// formatOutcome writes a short run summary to w.
func formatOutcome(out io.Writer, o *pipeline.Outcome, outputPath, jsonPath, mdPath string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if o.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", o.RunID)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", o.Status)

	s := o.Report.Summary
	_, _ = fmt.Fprintf(w, "Rows:\t%d in, %d out\n", s.InputRows, s.OutputRows)
	_, _ = fmt.Fprintf(w, "Mapped:\t%d (%d changed)\n", s.Mapped, s.EntriesChanged)
	_, _ = fmt.Fprintf(w, "Excluded:\t%d\n", s.Excluded)
	_, _ = fmt.Fprintf(w, "Technologies:\t%d -> %d\n", s.TechnologiesBefore, s.TechnologiesAfter)
	_, _ = fmt.Fprintf(w, "Warnings:\t%d\n", len(o.Report.Warnings))
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", len(o.Report.Errors))
	if outputPath != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", outputPath)
	}
	_, _ = fmt.Fprintf(w, "Report:\t%s, %s\n", jsonPath, mdPath)
	_ = w.Flush()
}
