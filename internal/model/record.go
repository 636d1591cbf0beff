package model

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Column names of the technology cost table.
const (
	ColTechnology         = "technology"
	ColParameter          = "parameter"
	ColValue              = "value"
	ColUnit               = "unit"
	ColSource             = "source"
	ColFurtherDescription = "further_description"
	ColCurrencyYear       = "currency_year"
)

// RequiredColumns lists the columns every cost table must carry.
var RequiredColumns = []string{
	ColTechnology,
	ColParameter,
	ColValue,
	ColUnit,
	ColSource,
	ColFurtherDescription,
	ColCurrencyYear,
}

// TechnologyRecord is one row of a technology cost table.
type TechnologyRecord struct {
	Technology         string              `json:"technology"`
	Parameter          string              `json:"parameter"`
	Value              decimal.NullDecimal `json:"value"`
	RawValue           string              `json:"raw_value"` // verbatim cell text, written back unchanged
	Unit               string              `json:"unit"`
	Source             string              `json:"source"`
	FurtherDescription string              `json:"further_description,omitempty"`
	CurrencyYear       string              `json:"currency_year,omitempty"`
	Extra              map[string]string   `json:"extra,omitempty"`
}

// RecordKey identifies a record at (technology, parameter) granularity.
type RecordKey struct {
	Technology string `json:"technology"`
	Parameter  string `json:"parameter"`
}

// Key returns the record's (technology, parameter) pair.
func (r TechnologyRecord) Key() RecordKey {
	return RecordKey{Technology: r.Technology, Parameter: r.Parameter}
}

// WithTechnology returns a copy of r with only the technology replaced.
func (r TechnologyRecord) WithTechnology(name string) TechnologyRecord {
	out := r
	out.Technology = name
	if r.Extra != nil {
		out.Extra = maps.Clone(r.Extra)
	}
	return out
}

// FieldDiff names a field whose verbatim text differs between two records.
type FieldDiff struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// DiffExceptTechnology compares every field other than technology verbatim and
// returns the fields that differ, in column order.
func (r TechnologyRecord) DiffExceptTechnology(o TechnologyRecord) []FieldDiff {
	var diffs []FieldDiff
	add := func(field, a, b string) {
		if a != b {
			diffs = append(diffs, FieldDiff{Field: field, Left: a, Right: b})
		}
	}

	add(ColParameter, r.Parameter, o.Parameter)
	add(ColValue, r.RawValue, o.RawValue)
	if r.Value.Valid != o.Value.Valid || (r.Value.Valid && !r.Value.Decimal.Equal(o.Value.Decimal)) {
		if r.RawValue == o.RawValue {
			add(ColValue, r.Value.Decimal.String(), o.Value.Decimal.String())
		}
	}
	add(ColUnit, r.Unit, o.Unit)
	add(ColSource, r.Source, o.Source)
	add(ColFurtherDescription, r.FurtherDescription, o.FurtherDescription)
	add(ColCurrencyYear, r.CurrencyYear, o.CurrencyYear)

	for _, k := range slices.Sorted(maps.Keys(r.Extra)) {
		add(k, r.Extra[k], o.Extra[k])
	}
	for _, k := range slices.Sorted(maps.Keys(o.Extra)) {
		if _, ok := r.Extra[k]; !ok {
			add(k, "", o.Extra[k])
		}
	}
	return diffs
}

// Diff compares every field including technology.
func (r TechnologyRecord) Diff(o TechnologyRecord) []FieldDiff {
	var diffs []FieldDiff
	if r.Technology != o.Technology {
		diffs = append(diffs, FieldDiff{Field: ColTechnology, Left: r.Technology, Right: o.Technology})
	}
	return append(diffs, r.DiffExceptTechnology(o)...)
}

// Dataset is a cost table: its header in file order plus its rows.
type Dataset struct {
	Header  []string           `json:"header"`
	Records []TechnologyRecord `json:"records"`
}

// Technologies returns the number of distinct technology names in records.
func Technologies(records []TechnologyRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Technology] = struct{}{}
	}
	return len(seen)
}
