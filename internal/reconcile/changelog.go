package reconcile

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/techmap/internal/classify"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/registry"
)

// ChangeLog summarizes what a reconciliation pass did. It only lists what
// fired in this run, never the static alias table.
type ChangeLog struct {
	Counts             Counts                `json:"counts"`
	Families           []FamilyChanges       `json:"families"`
	Excluded           []ExcludedTechnology  `json:"excluded"`
	Hinted             []HintedTechnology    `json:"hinted,omitempty"`
	Duplicates         []DuplicateKeyWarning `json:"duplicates,omitempty"`
	TechnologiesBefore int                   `json:"technologies_before"`
	TechnologiesAfter  int                   `json:"technologies_after"`
	EntriesChanged     int                   `json:"entries_changed"`
}

// Counts tallies records per classification outcome.
type Counts struct {
	Excluded     int `json:"excluded"`
	Mapped       int `json:"mapped"`
	Unrecognized int `json:"unrecognized"`
}

// Total returns the number of records counted.
func (c Counts) Total() int {
	return c.Excluded + c.Mapped + c.Unrecognized
}

// FamilyChanges aggregates the mapping activity for one canonical family.
type FamilyChanges struct {
	Family string `json:"family"`
	// Variants is the number of distinct raw identifiers rewritten into the
	// family.
	Variants int `json:"variants"`
	// Rows counts every Mapped row of the family, rewritten or already
	// canonical.
	Rows        int       `json:"rows"`
	RowsChanged int       `json:"rows_changed"`
	Pairs       []Mapping `json:"pairs"`
}

// Mapping is one observed raw -> canonical rewrite.
type Mapping struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
	Rows      int    `json:"rows"`
}

// ExcludedTechnology is a protected technology found in the input.
type ExcludedTechnology struct {
	Technology string `json:"technology"`
	Category   string `json:"category"`
	Pattern    string `json:"pattern"`
	Rows       int    `json:"rows"`
}

// HintedTechnology is an unrecognized technology whose name contains a
// storage term. These are candidates for new registry aliases.
type HintedTechnology struct {
	Technology string `json:"technology"`
	Hint       string `json:"hint"`
	Rows       int    `json:"rows"`
}

// DuplicateKeyWarning reports input rows that share a canonical
// (technology, parameter) after mapping. All rows are kept; the values are
// listed so a person can decide which source wins.
type DuplicateKeyWarning struct {
	Technology string          `json:"technology"`
	Parameter  string          `json:"parameter"`
	Rows       []int           `json:"rows"` // zero-based input positions
	RawNames   []string        `json:"raw_names"`
	RawValues  []string        `json:"raw_values"`
	Sources    []string        `json:"sources"`
	Spread     decimal.Decimal `json:"spread"` // max - min of the parsed values
}

func (w DuplicateKeyWarning) Error() string {
	return fmt.Sprintf("duplicate key (%s, %s) from %d rows: %s",
		w.Technology, w.Parameter, len(w.Rows), strings.Join(w.RawNames, ", "))
}

// Conflicting reports whether the colliding rows carry different values.
func (w DuplicateKeyWarning) Conflicting() bool {
	return !w.Spread.IsZero() || slices.ContainsFunc(w.RawValues, func(v string) bool {
		return v != w.RawValues[0]
	})
}

func buildChangeLog(reg *registry.Registry, in, out []model.TechnologyRecord, decisions []classify.Decision) *ChangeLog {
	cl := &ChangeLog{
		TechnologiesBefore: model.Technologies(in),
		TechnologiesAfter:  model.Technologies(out),
	}

	families := make(map[string]*FamilyChanges)
	pairIdx := make(map[string]map[string]int) // family -> raw -> index in Pairs
	excludedIdx := make(map[string]int)
	hintedIdx := make(map[string]int)

	for i, d := range decisions {
		raw := in[i].Technology
		switch d.Kind {
		case classify.KindExcluded:
			cl.Counts.Excluded++
			if j, ok := excludedIdx[raw]; ok {
				cl.Excluded[j].Rows++
				continue
			}
			excludedIdx[raw] = len(cl.Excluded)
			cl.Excluded = append(cl.Excluded, ExcludedTechnology{
				Technology: raw,
				Category:   d.Exclusion.Category,
				Pattern:    d.Exclusion.Pattern,
				Rows:       1,
			})

		case classify.KindMapped:
			cl.Counts.Mapped++
			fc, ok := families[d.Match.Family]
			if !ok {
				fc = &FamilyChanges{Family: d.Match.Family}
				families[d.Match.Family] = fc
				pairIdx[d.Match.Family] = make(map[string]int)
			}
			fc.Rows++
			if raw == d.Match.Canonical {
				continue
			}
			fc.RowsChanged++
			cl.EntriesChanged++
			if j, ok := pairIdx[d.Match.Family][raw]; ok {
				fc.Pairs[j].Rows++
				continue
			}
			pairIdx[d.Match.Family][raw] = len(fc.Pairs)
			fc.Pairs = append(fc.Pairs, Mapping{Raw: raw, Canonical: d.Match.Canonical, Rows: 1})
			fc.Variants++

		default:
			cl.Counts.Unrecognized++
			if j, ok := hintedIdx[raw]; ok {
				cl.Hinted[j].Rows++
				continue
			}
			if hint, ok := reg.Hinted(raw); ok {
				hintedIdx[raw] = len(cl.Hinted)
				cl.Hinted = append(cl.Hinted, HintedTechnology{Technology: raw, Hint: hint, Rows: 1})
			}
		}
	}

	for _, fc := range families {
		cl.Families = append(cl.Families, *fc)
	}
	slices.SortFunc(cl.Families, func(a, b FamilyChanges) int {
		return cmp.Compare(a.Family, b.Family)
	})
	slices.SortStableFunc(cl.Excluded, func(a, b ExcludedTechnology) int {
		return cmp.Compare(a.Technology, b.Technology)
	})

	cl.Duplicates = findDuplicates(in, out, decisions)
	return cl
}

// findDuplicates groups output rows by (technology, parameter) in input order
// and reports every group of two or more rows that contains a Mapped row.
// Collisions that were already present among untouched rows are the input's
// own business and are not reported.
func findDuplicates(in, out []model.TechnologyRecord, decisions []classify.Decision) []DuplicateKeyWarning {
	groups := make(map[model.RecordKey][]int)
	var order []model.RecordKey
	for i, rec := range out {
		k := rec.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	var dups []DuplicateKeyWarning
	for _, k := range order {
		rows := groups[k]
		if len(rows) < 2 {
			continue
		}
		if !slices.ContainsFunc(rows, func(i int) bool { return decisions[i].Kind == classify.KindMapped }) {
			continue
		}

		w := DuplicateKeyWarning{Technology: k.Technology, Parameter: k.Parameter, Rows: rows}
		var lo, hi decimal.Decimal
		seen := false
		for _, i := range rows {
			w.RawNames = append(w.RawNames, in[i].Technology)
			w.RawValues = append(w.RawValues, in[i].RawValue)
			w.Sources = append(w.Sources, in[i].Source)
			if v := in[i].Value; v.Valid {
				if !seen || v.Decimal.LessThan(lo) {
					lo = v.Decimal
				}
				if !seen || v.Decimal.GreaterThan(hi) {
					hi = v.Decimal
				}
				seen = true
			}
		}
		w.Spread = hi.Sub(lo)
		dups = append(dups, w)
	}
	return dups
}
