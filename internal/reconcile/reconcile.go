// Package reconcile rewrites technology names in a cost table to their
// canonical form in a single, order-preserving pass.
package reconcile

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/techmap/internal/classify"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/registry"
)

const defaultChunkSize = 256

// DuplicatePolicy decides what a (technology, parameter) collision after
// mapping does to the run. No policy drops or merges rows.
type DuplicatePolicy string

const (
	// DuplicateWarn keeps every row and attaches a DuplicateKeyWarning.
	DuplicateWarn DuplicatePolicy = "warn"
	// DuplicateFail keeps every row but blocks publication until the
	// collision is resolved by hand.
	DuplicateFail DuplicatePolicy = "fail"
)

// ParseDuplicatePolicy parses a policy name. The empty string selects warn.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateWarn:
		return DuplicateWarn, nil
	case DuplicateFail:
		return DuplicateFail, nil
	default:
		return "", eris.Errorf("reconcile: unknown duplicate policy %q (want warn or fail)", s)
	}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithWorkers sets how many goroutines classify records. Values below 2 run
// classification sequentially.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		r.workers = n
	}
}

// WithDuplicatePolicy sets the duplicate-key policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Reconciler) {
		r.policy = p
	}
}

// WithChunkSize sets how many records a single classification task handles.
func WithChunkSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// Reconciler maps raw technology names onto the registry's canonical names.
type Reconciler struct {
	reg        *registry.Registry
	classifier *classify.Classifier
	workers    int
	policy     DuplicatePolicy
	chunkSize  int
}

// New creates a Reconciler over reg.
func New(reg *registry.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		reg:        reg,
		classifier: classify.New(reg),
		workers:    1,
		policy:     DuplicateWarn,
		chunkSize:  defaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Output has exactly one record per input record, in input order.
	Output    []model.TechnologyRecord `json:"-"`
	Decisions []classify.Decision      `json:"-"`
	ChangeLog *ChangeLog               `json:"change_log"`
	Policy    DuplicatePolicy          `json:"duplicate_policy"`
}

// Blocked reports whether the duplicate policy forbids publishing Output.
func (r *Result) Blocked() bool {
	return r.Policy == DuplicateFail && len(r.ChangeLog.Duplicates) > 0
}

// Reconcile classifies every record and rewrites the technology of Mapped
// records. Classification may run concurrently; collision detection and the
// ChangeLog are reduced sequentially in input order so results are
// reproducible.
func (r *Reconciler) Reconcile(ctx context.Context, records []model.TechnologyRecord) (*Result, error) {
	decisions, err := r.classifyAll(ctx, records)
	if err != nil {
		return nil, err
	}

	out := make([]model.TechnologyRecord, len(records))
	for i, rec := range records {
		if d := decisions[i]; d.Kind == classify.KindMapped {
			out[i] = rec.WithTechnology(d.Match.Canonical)
		} else {
			out[i] = rec
		}
	}

	cl := buildChangeLog(r.reg, records, out, decisions)

	zap.L().Info("reconcile: complete",
		zap.Int("rows", len(records)),
		zap.Int("mapped", cl.Counts.Mapped),
		zap.Int("excluded", cl.Counts.Excluded),
		zap.Int("unrecognized", cl.Counts.Unrecognized),
		zap.Int("entries_changed", cl.EntriesChanged),
		zap.Int("duplicates", len(cl.Duplicates)),
	)
	for _, dup := range cl.Duplicates {
		zap.L().Warn("reconcile: duplicate key after mapping",
			zap.String("technology", dup.Technology),
			zap.String("parameter", dup.Parameter),
			zap.Strings("raw_names", dup.RawNames),
			zap.Ints("rows", dup.Rows),
		)
	}

	return &Result{
		Output:    out,
		Decisions: decisions,
		ChangeLog: cl,
		Policy:    r.policy,
	}, nil
}

func (r *Reconciler) classifyAll(ctx context.Context, records []model.TechnologyRecord) ([]classify.Decision, error) {
	decisions := make([]classify.Decision, len(records))

	if r.workers < 2 {
		for start := 0; start < len(records); start += r.chunkSize {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "reconcile: classify")
			}
			end := min(start+r.chunkSize, len(records))
			r.classifyRange(records, decisions, start, end)
		}
		return decisions, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for start := 0; start < len(records); start += r.chunkSize {
		end := min(start+r.chunkSize, len(records))
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			// Each task writes only its own index range.
			r.classifyRange(records, decisions, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "reconcile: classify")
	}
	return decisions, nil
}

func (r *Reconciler) classifyRange(records []model.TechnologyRecord, decisions []classify.Decision, start, end int) {
	for i := start; i < end; i++ {
		decisions[i] = r.classifier.Classify(records[i])
	}
}
