package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/techmap/internal/classify"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/registry"
)

func rec(tech, param, raw string) model.TechnologyRecord {
	r := model.TechnologyRecord{
		Technology: tech,
		Parameter:  param,
		RawValue:   raw,
		Unit:       "EUR/kWh",
		Source:     "Danish Energy Agency",
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		r.Value = decimal.NewNullDecimal(d)
	}
	return r
}

func newReconciler(t *testing.T, opts ...Option) *Reconciler {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return New(reg, opts...)
}

func sampleRecords() []model.TechnologyRecord {
	return []model.TechnologyRecord{
		rec("Vanadium-Redox-Flow-store", "investment", "258.0"),
		rec("iron-air battery discharge", "FOM", "1.5"),
		rec("Battery electric (trucks)", "investment", "120000"),
		rec("onwind", "investment", "1035.0"),
		rec("H2 electrolysis", "investment", "500"),
		rec("electrolysis", "investment", "450"),
		rec("Battery electric (trucks)", "lifetime", "15"),
		rec("battery inverter", "efficiency", "0.96"),
		rec("Sodium-Sulfur battery", "investment", "300"),
	}
}

func TestReconcile_Scenarios(t *testing.T) {
	r := newReconciler(t)
	in := sampleRecords()

	res, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Output, len(in))

	// Scenario 1
	assert.Equal(t, "vanadium-store", res.Output[0].Technology)
	assert.Empty(t, res.Output[0].DiffExceptTechnology(in[0]))

	// Scenario 2
	assert.Equal(t, "IronAir-discharger", res.Output[1].Technology)

	// Scenario 3
	assert.Equal(t, in[2], res.Output[2])
	assert.Equal(t, classify.KindExcluded, res.Decisions[2].Kind)

	assert.Equal(t, in[3], res.Output[3])
	assert.Equal(t, classify.KindUnrecognized, res.Decisions[3].Kind)

	// Scenario 4: both rows survive with their own values.
	assert.Equal(t, "H2-charger", res.Output[4].Technology)
	assert.Equal(t, "H2-charger", res.Output[5].Technology)
	assert.Equal(t, "500", res.Output[4].RawValue)
	assert.Equal(t, "450", res.Output[5].RawValue)

	dups := res.ChangeLog.Duplicates
	require.Len(t, dups, 1)
	assert.Equal(t, "H2-charger", dups[0].Technology)
	assert.Equal(t, "investment", dups[0].Parameter)
	assert.Equal(t, []int{4, 5}, dups[0].Rows)
	assert.Equal(t, []string{"H2 electrolysis", "electrolysis"}, dups[0].RawNames)
	assert.Equal(t, []string{"500", "450"}, dups[0].RawValues)
	assert.True(t, dups[0].Spread.Equal(decimal.NewFromInt(50)))
	assert.True(t, dups[0].Conflicting())
	assert.Contains(t, dups[0].Error(), "H2-charger")

	assert.False(t, res.Blocked())
}

func TestReconcile_ChangeLog(t *testing.T) {
	r := newReconciler(t)
	in := sampleRecords()

	res, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	cl := res.ChangeLog

	assert.Equal(t, Counts{Excluded: 2, Mapped: 5, Unrecognized: 2}, cl.Counts)
	assert.Equal(t, len(in), cl.Counts.Total())
	assert.Equal(t, 5, cl.EntriesChanged)
	assert.Equal(t, 8, cl.TechnologiesBefore)
	assert.Equal(t, 7, cl.TechnologiesAfter)

	want := []FamilyChanges{
		{Family: "H2", Variants: 2, Rows: 2, RowsChanged: 2, Pairs: []Mapping{
			{Raw: "H2 electrolysis", Canonical: "H2-charger", Rows: 1},
			{Raw: "electrolysis", Canonical: "H2-charger", Rows: 1},
		}},
		{Family: "IronAir", Variants: 1, Rows: 1, RowsChanged: 1, Pairs: []Mapping{
			{Raw: "iron-air battery discharge", Canonical: "IronAir-discharger", Rows: 1},
		}},
		{Family: "battery", Variants: 1, Rows: 1, RowsChanged: 1, Pairs: []Mapping{
			{Raw: "battery inverter", Canonical: "battery-charger", Rows: 1},
		}},
		{Family: "vanadium", Variants: 1, Rows: 1, RowsChanged: 1, Pairs: []Mapping{
			{Raw: "Vanadium-Redox-Flow-store", Canonical: "vanadium-store", Rows: 1},
		}},
	}
	if diff := cmp.Diff(want, cl.Families); diff != "" {
		t.Errorf("families mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, cl.Excluded, 1)
	assert.Equal(t, ExcludedTechnology{
		Technology: "Battery electric (trucks)",
		Category:   "transportation",
		Pattern:    "Battery electric (*)",
		Rows:       2,
	}, cl.Excluded[0])

	require.Len(t, cl.Hinted, 1)
	assert.Equal(t, "Sodium-Sulfur battery", cl.Hinted[0].Technology)
	assert.Equal(t, "battery", cl.Hinted[0].Hint)
}

func TestReconcile_RowCountInvariance(t *testing.T) {
	r := newReconciler(t)

	for _, n := range []int{0, 1, 7, 1000} {
		in := make([]model.TechnologyRecord, n)
		for i := range in {
			in[i] = rec("battery_4h", fmt.Sprintf("p%d", i), "1")
		}
		res, err := r.Reconcile(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, res.Output, n)
		assert.Len(t, res.Decisions, n)
	}
}

func TestReconcile_ExclusionInvariance(t *testing.T) {
	r := newReconciler(t)
	in := []model.TechnologyRecord{
		rec("Battery electric (passenger cars)", "investment", "30000"),
		rec("Hydrogen fuel cell (trucks)", "investment", "150000"),
		rec("BEV Bus city", "FOM", "2.0"),
		rec("Charging infrastructure fast (purely) battery electric vehicles passenger cars", "investment", "0.3"),
	}

	res, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	if diff := cmp.Diff(in, res.Output); diff != "" {
		t.Errorf("excluded rows changed (-in +out):\n%s", diff)
	}
	assert.Zero(t, res.ChangeLog.EntriesChanged)
	assert.Equal(t, len(in), res.ChangeLog.Counts.Excluded)
}

func TestReconcile_Idempotent(t *testing.T) {
	r := newReconciler(t)

	first, err := r.Reconcile(context.Background(), sampleRecords())
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), first.Output)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Output, second.Output); diff != "" {
		t.Errorf("second pass changed output (-first +second):\n%s", diff)
	}
	assert.Zero(t, second.ChangeLog.EntriesChanged)
	assert.Equal(t, first.ChangeLog.Counts, second.ChangeLog.Counts)
}

func TestReconcile_DuplicatePolicyFail(t *testing.T) {
	r := newReconciler(t, WithDuplicatePolicy(DuplicateFail))

	res, err := r.Reconcile(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.True(t, res.Blocked())
	assert.Len(t, res.Output, len(sampleRecords()))
}

func TestReconcile_UntouchedDuplicatesNotReported(t *testing.T) {
	r := newReconciler(t)
	in := []model.TechnologyRecord{
		rec("onwind", "investment", "1"),
		rec("onwind", "investment", "2"),
		rec("Battery electric (trucks)", "FOM", "1"),
		rec("Battery electric (trucks)", "FOM", "1"),
	}

	res, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.ChangeLog.Duplicates)
}

func TestReconcile_IdenticalDuplicateNotConflicting(t *testing.T) {
	r := newReconciler(t)
	in := []model.TechnologyRecord{
		rec("Li-Ion", "lifetime", "20"),
		rec("lithium-ion", "lifetime", "20"),
	}

	res, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.ChangeLog.Duplicates, 1)
	assert.False(t, res.ChangeLog.Duplicates[0].Conflicting())
}

func TestReconcile_ParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	var in []model.TechnologyRecord
	for i := range 500 {
		in = append(in, sampleRecords()[i%len(sampleRecords())])
	}

	seq, err := newReconciler(t).Reconcile(context.Background(), in)
	require.NoError(t, err)
	par, err := newReconciler(t, WithWorkers(8), WithChunkSize(16)).Reconcile(context.Background(), in)
	require.NoError(t, err)

	if diff := cmp.Diff(seq.Output, par.Output); diff != "" {
		t.Errorf("parallel output differs (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(seq.ChangeLog, par.ChangeLog); diff != "" {
		t.Errorf("parallel change log differs (-seq +par):\n%s", diff)
	}
}

func TestReconcile_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		_, err := newReconciler(t, WithWorkers(workers)).Reconcile(ctx, sampleRecords())
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DuplicateWarn, p)

	p, err = ParseDuplicatePolicy(" FAIL ")
	require.NoError(t, err)
	assert.Equal(t, DuplicateFail, p)

	_, err = ParseDuplicatePolicy("average")
	assert.Error(t, err)
}
