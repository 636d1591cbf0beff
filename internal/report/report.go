// Package report turns a change log and a validation report into the
// structured and human-readable run report.
package report

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/reconcile"
	"github.com/sells-group/techmap/internal/validate"
)

// Summary holds the headline numbers of a run.
type Summary struct {
	InputRows          int `json:"input_rows"`
	OutputRows         int `json:"output_rows"`
	Excluded           int `json:"excluded"`
	Mapped             int `json:"mapped"`
	Unrecognized       int `json:"unrecognized"`
	EntriesChanged     int `json:"entries_changed"`
	TechnologiesBefore int `json:"technologies_before"`
	TechnologiesAfter  int `json:"technologies_after"`
}

// StructuredReport is the complete, serializable report of one run.
type StructuredReport struct {
	Status          model.RunStatus                 `json:"status"`
	RegistryDigest  string                          `json:"registry_digest,omitempty"`
	DuplicatePolicy reconcile.DuplicatePolicy       `json:"duplicate_policy,omitempty"`
	Summary         Summary                         `json:"summary"`
	Families        []reconcile.FamilyChanges       `json:"families"`
	Excluded        []reconcile.ExcludedTechnology  `json:"excluded"`
	Hinted          []reconcile.HintedTechnology    `json:"hinted,omitempty"`
	Duplicates      []reconcile.DuplicateKeyWarning `json:"duplicates,omitempty"`
	Validation      *validate.Report                `json:"validation,omitempty"`
	Errors          []string                        `json:"errors,omitempty"`
	Warnings        []string                        `json:"warnings,omitempty"`
}

// Emit assembles a StructuredReport. It has no side effects; the caller sets
// Status and run metadata.
func Emit(cl *reconcile.ChangeLog, v *validate.Report) *StructuredReport {
	rep := &StructuredReport{Validation: v}

	if cl != nil {
		rep.Summary.Excluded = cl.Counts.Excluded
		rep.Summary.Mapped = cl.Counts.Mapped
		rep.Summary.Unrecognized = cl.Counts.Unrecognized
		rep.Summary.EntriesChanged = cl.EntriesChanged
		rep.Summary.TechnologiesBefore = cl.TechnologiesBefore
		rep.Summary.TechnologiesAfter = cl.TechnologiesAfter
		rep.Families = cl.Families
		rep.Excluded = cl.Excluded
		rep.Hinted = cl.Hinted
		rep.Duplicates = cl.Duplicates
		for _, d := range cl.Duplicates {
			rep.Warnings = append(rep.Warnings, d.Error())
		}
	}

	if v != nil {
		rep.Summary.InputRows = v.InputRows
		rep.Summary.OutputRows = v.OutputRows
		if cl == nil {
			rep.Summary.Excluded = v.Excluded
			rep.Summary.Mapped = v.Mapped
			rep.Summary.Unrecognized = v.Unrecognized
		}
		if v.RowCount != nil {
			rep.Errors = append(rep.Errors, v.RowCount.Error())
		}
		if v.Header != nil {
			rep.Errors = append(rep.Errors, v.Header.Error())
		}
		for _, m := range v.Mutations {
			rep.Errors = append(rep.Errors, m.Error())
		}
		for _, w := range v.Unmapped {
			rep.Warnings = append(rep.Warnings, w.Error())
		}
	}

	return rep
}

// JSON renders the report as indented JSON.
func JSON(rep *StructuredReport) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal")
	}
	return data, nil
}
