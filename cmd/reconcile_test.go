//go:build !integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techmap/internal/costfile"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/pipeline"
	"github.com/sells-group/techmap/internal/report"
)

const inputCSV = "technology,parameter,value,unit,source,further_description,currency_year\n" +
	"H2 electrolysis,investment,500,EUR/kW,DEA,,2020\n" +
	"electrolysis,investment,450,EUR/kW,PNNL,,2020\n" +
	"Battery electric (trucks),investment,120000,EUR/vehicle,DEA,,2020\n" +
	"Vanadium-Redox-Flow-store,investment,258.0,EUR/kWh,DEA,,2020\n"

// execute runs the root command in a temp working directory with history
// disabled.
func execute(t *testing.T, dir string, args ...string) error {
	t.Helper()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	t.Setenv("TECHMAP_STORE_DRIVER", "none")
	t.Setenv("TECHMAP_LOG_LEVEL", "error")

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestReconcileCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "costs.csv")
	out := filepath.Join(dir, "canonical.csv")
	require.NoError(t, os.WriteFile(in, []byte(inputCSV), 0o644))

	err := execute(t, dir, "reconcile", in, "-o", out, "--duplicate-policy", "warn", "--workers", "2")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	want := "technology,parameter,value,unit,source,further_description,currency_year\n" +
		"H2-charger,investment,500,EUR/kW,DEA,,2020\n" +
		"H2-charger,investment,450,EUR/kW,PNNL,,2020\n" +
		"Battery electric (trucks),investment,120000,EUR/vehicle,DEA,,2020\n" +
		"vanadium-store,investment,258.0,EUR/kWh,DEA,,2020\n"
	assert.Equal(t, want, string(data))

	md, err := os.ReadFile(filepath.Join(dir, "canonical.report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "PASSED WITH WARNINGS")
	assert.FileExists(t, filepath.Join(dir, "canonical.report.json"))
}

func TestReconcileCommand_FailPolicyWritesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "costs.csv")
	out := filepath.Join(dir, "canonical.csv")
	require.NoError(t, os.WriteFile(in, []byte(inputCSV), 0o644))

	err := execute(t, dir, "reconcile", in, "-o", out, "--duplicate-policy", "fail", "--workers", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output not written")

	assert.NoFileExists(t, out)
	md, err := os.ReadFile(filepath.Join(dir, "canonical.report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "FAILED (output not published)")
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) EnsureTable(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPublisher) Publish(ctx context.Context, runID string, status model.RunStatus, records []model.TechnologyRecord) (int64, error) {
	args := m.Called(ctx, runID, status, records)
	return args.Get(0).(int64), args.Error(1)
}

func sinkDataset() model.Dataset {
	return model.Dataset{
		Header:  model.RequiredColumns,
		Records: []model.TechnologyRecord{{Technology: "H2-charger", Parameter: "investment", RawValue: "500", Unit: "EUR/kW", Source: "DEA"}},
	}
}

func TestOutputSink_PublishFailureKeepsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "canonical.csv")
	require.NoError(t, os.WriteFile(out, []byte("previous\n"), 0o644))

	pub := new(mockPublisher)
	pub.On("EnsureTable", mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, "run-1", model.RunStatusSuccess, mock.Anything).
		Return(int64(0), eris.New("publish: replace table: connection refused"))

	sink := outputSink(out, costfile.Options{Backup: true}, pub)
	err := sink(context.Background(), "run-1", model.RunStatusSuccess, sinkDataset())
	require.Error(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
	assert.NoFileExists(t, out+costfile.BackupSuffix)
	pub.AssertExpectations(t)
}

func TestOutputSink_PublishesThenWrites(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "canonical.csv")
	ds := sinkDataset()

	pub := new(mockPublisher)
	pub.On("EnsureTable", mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("string"), model.RunStatusSuccessWithWarnings, ds.Records).
		Return(int64(1), nil)

	sink := outputSink(out, costfile.Options{}, pub)
	require.NoError(t, sink(context.Background(), "", model.RunStatusSuccessWithWarnings, ds))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "H2-charger,investment,500,EUR/kW,DEA")
	pub.AssertExpectations(t)
}

func TestOutputSink_NoPublisher(t *testing.T) {
	out := filepath.Join(t.TempDir(), "canonical.csv")
	require.NoError(t, outputSink(out, costfile.Options{}, nil)(context.Background(), "run-1", model.RunStatusSuccess, sinkDataset()))
	assert.FileExists(t, out)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(in, []byte(inputCSV), 0o644))
	// Drops a row.
	require.NoError(t, os.WriteFile(out, []byte(inputCSV[:len(inputCSV)-len("Vanadium-Redox-Flow-store,investment,258.0,EUR/kWh,DEA,,2020\n")]), 0o644))

	err := execute(t, dir, "validate", in, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row count mismatch")
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "data/costs_canonical.csv", defaultOutputPath("data/costs.csv"))
	assert.Equal(t, "costs_canonical.xlsx", defaultOutputPath("costs.xlsx"))
	assert.Equal(t, "costs_canonical", defaultOutputPath("costs"))
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "costs_2030", fileStem("/tmp/data/costs_2030.csv"))
}

func TestWriteReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	rep := &report.StructuredReport{Status: model.RunStatusSuccess}

	jsonPath, mdPath, err := writeReports(dir, "costs", rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "costs.report.json"), jsonPath)
	assert.FileExists(t, jsonPath)
	assert.FileExists(t, mdPath)
}

func TestFormatOutcome(t *testing.T) {
	o := &pipeline.Outcome{
		RunID:  "run-1",
		Status: model.RunStatusSuccess,
		Report: &report.StructuredReport{Summary: report.Summary{
			InputRows: 4, OutputRows: 4, Mapped: 2, EntriesChanged: 1, TechnologiesBefore: 4, TechnologiesAfter: 3,
		}},
	}

	var buf bytes.Buffer
	formatOutcome(&buf, o, "out.csv", "out.report.json", "out.report.md")
	output := buf.String()
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "success")
	assert.Contains(t, output, "4 in, 4 out")
	assert.Contains(t, output, "2 (1 changed)")
	assert.Contains(t, output, "4 -> 3")
	assert.Contains(t, output, "out.csv")
}
