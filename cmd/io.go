package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/techmap/internal/costfile"
	"github.com/sells-group/techmap/internal/reconcile"
	"github.com/sells-group/techmap/internal/report"
)

// costfileOptions builds read/write options from config.
func costfileOptions() (costfile.Options, error) {
	delim, err := cfg.Input.DelimiterRune()
	if err != nil {
		return costfile.Options{}, err
	}
	return costfile.Options{
		CSV: costfile.CSVOptions{
			Delimiter: delim,
			Encoding:  cfg.Input.Encoding,
		},
		XLSX:   costfile.XLSXOptions{SheetName: cfg.Input.Sheet},
		Backup: cfg.Output.Backup,
	}, nil
}

// reconcileOptions builds reconciler options from config, letting flags
// override.
func reconcileOptions(cmd *cobra.Command) ([]reconcile.Option, error) {
	workers := cfg.Reconcile.Workers
	if cmd.Flags().Changed("workers") {
		workers, _ = cmd.Flags().GetInt("workers")
	}
	policyName := cfg.Reconcile.DuplicatePolicy
	if cmd.Flags().Changed("duplicate-policy") {
		policyName, _ = cmd.Flags().GetString("duplicate-policy")
	}
	policy, err := reconcile.ParseDuplicatePolicy(policyName)
	if err != nil {
		return nil, err
	}
	return []reconcile.Option{
		reconcile.WithWorkers(workers),
		reconcile.WithChunkSize(cfg.Reconcile.ChunkSize),
		reconcile.WithDuplicatePolicy(policy),
	}, nil
}

// defaultOutputPath places the canonical table next to its input:
// costs.csv becomes costs_canonical.csv.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_canonical" + ext
}

// writeReports writes <stem>.report.json and <stem>.report.md into dir.
func writeReports(dir, stem string, rep *report.StructuredReport) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", eris.Wrapf(err, "report: create dir %s", dir)
	}

	data, err := report.JSON(rep)
	if err != nil {
		return "", "", err
	}
	jsonPath := filepath.Join(dir, stem+".report.json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil { //nolint:gosec // report is not sensitive
		return "", "", eris.Wrapf(err, "report: write %s", jsonPath)
	}

	mdPath := filepath.Join(dir, stem+".report.md")
	if err := os.WriteFile(mdPath, []byte(report.Markdown(rep)), 0o644); err != nil { //nolint:gosec // report is not sensitive
		return "", "", eris.Wrapf(err, "report: write %s", mdPath)
	}
	return jsonPath, mdPath, nil
}

// fileStem is the file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
