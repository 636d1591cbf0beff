package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func rec(tech, param, raw string) TechnologyRecord {
	r := TechnologyRecord{
		Technology: tech,
		Parameter:  param,
		RawValue:   raw,
		Unit:       "EUR/kW",
		Source:     "DEA 2035",
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		r.Value = decimal.NewNullDecimal(d)
	}
	return r
}

func TestRecordKey(t *testing.T) {
	r := rec("H2-charger", "investment", "450")
	assert.Equal(t, RecordKey{Technology: "H2-charger", Parameter: "investment"}, r.Key())
}

func TestWithTechnology_CopiesExtra(t *testing.T) {
	r := rec("battery_4h", "FOM", "1.5")
	r.Extra = map[string]string{"notes": "x"}

	out := r.WithTechnology("battery4")
	out.Extra["notes"] = "changed"

	assert.Equal(t, "battery4", out.Technology)
	assert.Equal(t, "battery_4h", r.Technology)
	assert.Equal(t, "x", r.Extra["notes"])
}

func TestDiffExceptTechnology_IgnoresTechnology(t *testing.T) {
	a := rec("Vanadium-Redox-Flow-store", "investment", "250.0")
	b := a.WithTechnology("vanadium-store")
	assert.Empty(t, a.DiffExceptTechnology(b))
	assert.Len(t, a.Diff(b), 1)
}

func TestDiffExceptTechnology_RawValueIsVerbatim(t *testing.T) {
	a := rec("CAES", "lifetime", "30.0")
	b := rec("CAES", "lifetime", "30")

	diffs := a.DiffExceptTechnology(b)
	assert.Equal(t, []FieldDiff{{Field: ColValue, Left: "30.0", Right: "30"}}, diffs)
}

func TestDiffExceptTechnology_ExtraColumns(t *testing.T) {
	a := rec("CAES", "lifetime", "30")
	a.Extra = map[string]string{"b": "1", "a": "2"}
	b := a.WithTechnology("CAES")
	b.Extra["a"] = "3"
	b.Extra["c"] = "new"

	diffs := a.DiffExceptTechnology(b)
	assert.Equal(t, []FieldDiff{
		{Field: "a", Left: "2", Right: "3"},
		{Field: "c", Left: "", Right: "new"},
	}, diffs)
}

func TestTechnologies(t *testing.T) {
	records := []TechnologyRecord{
		rec("H2", "a", "1"),
		rec("H2", "b", "1"),
		rec("CAES", "a", "1"),
	}
	assert.Equal(t, 2, Technologies(records))
	assert.Equal(t, 0, Technologies(nil))
}

func TestRunStatus_Publishable(t *testing.T) {
	assert.True(t, RunStatusSuccess.Publishable())
	assert.True(t, RunStatusSuccessWithWarnings.Publishable())
	assert.False(t, RunStatusFailure.Publishable())
	assert.False(t, RunStatusRunning.Publishable())
}
