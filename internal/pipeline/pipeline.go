// Package pipeline runs registry load, reconciliation, validation, and
// report emission as one linear pass with a tri-state outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/reconcile"
	"github.com/sells-group/techmap/internal/registry"
	"github.com/sells-group/techmap/internal/report"
	"github.com/sells-group/techmap/internal/store"
	"github.com/sells-group/techmap/internal/validate"
)

// Sink persists a run's output. It is only called with a publishable status.
type Sink func(ctx context.Context, runID string, status model.RunStatus, output model.Dataset) error

// Request describes one run.
type Request struct {
	Input      model.Dataset
	InputPath  string
	OutputPath string
	// Sink receives the output when the run succeeds. Nil skips persistence.
	Sink Sink
}

// Outcome is the result of one run. Output is nil unless Status is
// publishable.
type Outcome struct {
	RunID      string
	Status     model.RunStatus
	Output     *model.Dataset
	Result     *reconcile.Result
	Validation *validate.Report
	Report     *report.StructuredReport
	Duration   time.Duration
}

// Pipeline wires a registry, a reconciler configuration, and an optional run
// history store.
type Pipeline struct {
	reg   *registry.Registry
	store store.Store
	opts  []reconcile.Option
}

// New creates a Pipeline. st may be nil, in which case runs are not recorded.
func New(reg *registry.Registry, st store.Store, opts ...reconcile.Option) *Pipeline {
	return &Pipeline{reg: reg, store: st, opts: opts}
}

// Run reconciles req.Input, validates the result against the input, and
// decides the run status. The sink is called only for success and
// success_with_warnings; a sink error turns the run into a failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	log := zap.L().With(zap.String("input", req.InputPath))
	log.Info("pipeline: starting run", zap.Int("rows", len(req.Input.Records)))
	start := time.Now()

	out := &Outcome{}
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, req.InputPath, p.reg.Digest())
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		out.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	res, err := reconcile.New(p.reg, p.opts...).Reconcile(ctx, req.Input.Records)
	if err != nil {
		p.complete(ctx, log, out.RunID, &model.RunResult{
			Status:    model.RunStatusFailure,
			InputRows: len(req.Input.Records),
			Errors:    1,
		})
		return nil, eris.Wrap(err, "pipeline: reconcile")
	}
	out.Result = res

	output := model.Dataset{Header: req.Input.Header, Records: res.Output}
	out.Validation = validate.ValidateDatasets(p.reg, req.Input, output)
	out.Status = decide(res, out.Validation)

	rep := report.Emit(res.ChangeLog, out.Validation)
	rep.RegistryDigest = p.reg.Digest()
	rep.DuplicatePolicy = res.Policy
	if res.Blocked() {
		rep.Errors = append(rep.Errors, fmt.Sprintf(
			"%d duplicate keys under the %s policy; resolve them by hand before publishing",
			len(res.ChangeLog.Duplicates), res.Policy))
	}

	if out.Status.Publishable() {
		if req.Sink != nil {
			if sinkErr := req.Sink(ctx, out.RunID, out.Status, output); sinkErr != nil {
				out.Status = model.RunStatusFailure
				rep.Errors = append(rep.Errors, sinkErr.Error())
				log.Error("pipeline: write output failed", zap.Error(sinkErr))
			}
		}
	}
	if out.Status.Publishable() {
		out.Output = &output
	}
	rep.Status = out.Status
	out.Report = rep
	out.Duration = time.Since(start)

	result := &model.RunResult{
		Status:     out.Status,
		InputRows:  len(req.Input.Records),
		OutputRows: len(res.Output),
		MappedRows: res.ChangeLog.Counts.Mapped,
		Warnings:   len(rep.Warnings),
		Errors:     len(rep.Errors),
	}
	if out.Output != nil {
		result.OutputPath = req.OutputPath
	}
	if data, jsonErr := json.Marshal(rep); jsonErr == nil {
		result.Report = data
	} else {
		log.Warn("pipeline: marshal report", zap.Error(jsonErr))
	}
	p.complete(ctx, log, out.RunID, result)

	log.Info("pipeline: run complete",
		zap.String("status", string(out.Status)),
		zap.Int("mapped", res.ChangeLog.Counts.Mapped),
		zap.Int("warnings", result.Warnings),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

func (p *Pipeline) complete(ctx context.Context, log *zap.Logger, runID string, result *model.RunResult) {
	if p.store == nil || runID == "" {
		return
	}
	if err := p.store.CompleteRun(ctx, runID, result); err != nil {
		log.Warn("pipeline: failed to record run result", zap.Error(err))
	}
}

// decide maps validation and duplicate findings onto the run status.
// Duplicate keys always count as warnings; under the fail policy they fail
// the run.
func decide(res *reconcile.Result, v *validate.Report) model.RunStatus {
	switch {
	case v.Failed() || res.Blocked():
		return model.RunStatusFailure
	case v.HasWarnings() || len(res.ChangeLog.Duplicates) > 0:
		return model.RunStatusSuccessWithWarnings
	default:
		return model.RunStatusSuccess
	}
}
