// Package validate checks a reconciled cost table against its input before
// the output may be published.
package validate

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/techmap/internal/classify"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/registry"
)

// Report is the outcome of validating one reconciliation.
type Report struct {
	InputRows    int           `json:"input_rows"`
	OutputRows   int           `json:"output_rows"`
	Excluded     int           `json:"excluded"`
	Mapped       int           `json:"mapped"`
	Unrecognized int           `json:"unrecognized"`
	Families     []FamilyCount `json:"families"`

	RowCount  *RowCountMismatchError     `json:"row_count,omitempty"`
	Header    *HeaderMismatchError       `json:"header,omitempty"`
	Mutations []*UnintendedMutationError `json:"mutations,omitempty"`
	Unmapped  []*UnmappedAliasWarning    `json:"unmapped,omitempty"`
}

// FamilyCount is the number of input rows that belong to a family.
type FamilyCount struct {
	Family string `json:"family"`
	Rows   int    `json:"rows"`
}

// Failed reports whether any fatal check failed.
func (r *Report) Failed() bool {
	return r.RowCount != nil || r.Header != nil || len(r.Mutations) > 0
}

// HasWarnings reports whether any advisory check fired.
func (r *Report) HasWarnings() bool {
	return len(r.Unmapped) > 0
}

// Err joins every fatal violation, or returns nil.
func (r *Report) Err() error {
	var errs []error
	if r.RowCount != nil {
		errs = append(errs, r.RowCount)
	}
	if r.Header != nil {
		errs = append(errs, r.Header)
	}
	for _, m := range r.Mutations {
		errs = append(errs, m)
	}
	return errors.Join(errs...)
}

// Validate compares output against input. Rows are identified by position.
// Checks run in order: row count, excluded rows untouched, mapped rows only
// renamed to a canonical name (unrecognized rows untouched), then coverage.
// Positional checks are skipped when the row counts differ.
func Validate(reg *registry.Registry, input, output []model.TechnologyRecord) *Report {
	c := classify.New(reg)
	rep := &Report{InputRows: len(input), OutputRows: len(output)}

	decisions := make([]classify.Decision, len(input))
	families := make(map[string]int)
	for i, rec := range input {
		d := c.Classify(rec)
		decisions[i] = d
		switch d.Kind {
		case classify.KindExcluded:
			rep.Excluded++
		case classify.KindMapped:
			rep.Mapped++
			families[d.Match.Family]++
		default:
			rep.Unrecognized++
		}
	}
	for _, f := range slices.Sorted(maps.Keys(families)) {
		rep.Families = append(rep.Families, FamilyCount{Family: f, Rows: families[f]})
	}

	if len(input) != len(output) {
		rep.RowCount = rowCountMismatch(input, output)
		return rep
	}

	for i, d := range decisions {
		in, out := input[i], output[i]
		switch d.Kind {
		case classify.KindExcluded, classify.KindUnrecognized:
			if diffs := in.Diff(out); len(diffs) > 0 {
				rep.Mutations = append(rep.Mutations, &UnintendedMutationError{
					Row: i, Kind: d.Kind, Input: in.Technology, Output: out.Technology, Fields: diffs,
				})
			}

		case classify.KindMapped:
			diffs := in.DiffExceptTechnology(out)
			var reason string
			// A raw name left in place is reported as unmapped below; only a
			// rename to something outside the canonical set is fatal.
			if out.Technology != in.Technology && !reg.IsCanonical(out.Technology) {
				reason = fmt.Sprintf("technology %q is not a canonical name", out.Technology)
			}
			if len(diffs) > 0 || reason != "" {
				rep.Mutations = append(rep.Mutations, &UnintendedMutationError{
					Row: i, Kind: d.Kind, Input: in.Technology, Output: out.Technology, Fields: diffs, Reason: reason,
				})
			}
			if out.Technology != d.Match.Canonical {
				rep.Unmapped = append(rep.Unmapped, &UnmappedAliasWarning{
					Row: i, Raw: in.Technology, Expected: d.Match.Canonical, Actual: out.Technology,
				})
			}
		}
	}

	return rep
}

// ValidateDatasets runs Validate and additionally requires both tables to
// carry the same columns in the same order.
func ValidateDatasets(reg *registry.Registry, input, output model.Dataset) *Report {
	rep := Validate(reg, input.Records, output.Records)
	if !slices.Equal(input.Header, output.Header) {
		rep.Header = &HeaderMismatchError{Input: input.Header, Output: output.Header}
	}
	return rep
}

// rowCountMismatch itemizes the rows that differ between two tables of
// different length, treating each as a multiset keyed on every field except
// technology.
func rowCountMismatch(input, output []model.TechnologyRecord) *RowCountMismatchError {
	e := &RowCountMismatchError{InputRows: len(input), OutputRows: len(output)}
	e.Missing = unmatched(input, output)
	e.Extra = unmatched(output, input)
	return e
}

// unmatched returns the rows of a that have no remaining counterpart in b.
func unmatched(a, b []model.TechnologyRecord) []RowRef {
	avail := make(map[string]int, len(b))
	for _, r := range b {
		avail[fingerprint(r)]++
	}
	var refs []RowRef
	for i, r := range a {
		fp := fingerprint(r)
		if avail[fp] > 0 {
			avail[fp]--
			continue
		}
		refs = append(refs, refOf(i, r))
	}
	return refs
}

func fingerprint(r model.TechnologyRecord) string {
	parts := []string{r.Parameter, r.RawValue, r.Unit, r.Source, r.FurtherDescription, r.CurrencyYear}
	for _, k := range slices.Sorted(maps.Keys(r.Extra)) {
		parts = append(parts, k+"="+r.Extra[k])
	}
	return strings.Join(parts, "\x1f")
}
