package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/techmap/internal/classify"
	"github.com/sells-group/techmap/internal/model"
)

// RowRef points at one row of a dataset.
type RowRef struct {
	Row        int    `json:"row"` // zero-based position
	Technology string `json:"technology"`
	Parameter  string `json:"parameter"`
	Value      string `json:"value"`
}

func refOf(i int, r model.TechnologyRecord) RowRef {
	return RowRef{Row: i, Technology: r.Technology, Parameter: r.Parameter, Value: r.RawValue}
}

// RowCountMismatchError means the output does not have one row per input
// row. Missing lists input rows with no counterpart in the output and Extra
// lists output rows with no counterpart in the input, compared on every field
// but technology.
type RowCountMismatchError struct {
	InputRows  int      `json:"input_rows"`
	OutputRows int      `json:"output_rows"`
	Missing    []RowRef `json:"missing,omitempty"`
	Extra      []RowRef `json:"extra,omitempty"`
}

func (e *RowCountMismatchError) Error() string {
	return fmt.Sprintf("validate: row count mismatch: input has %d rows, output has %d (%d missing, %d extra)",
		e.InputRows, e.OutputRows, len(e.Missing), len(e.Extra))
}

// UnintendedMutationError means a row was changed in a way its
// classification does not allow.
type UnintendedMutationError struct {
	Row    int               `json:"row"`
	Kind   classify.Kind     `json:"kind"`
	Input  string            `json:"input_technology"`
	Output string            `json:"output_technology"`
	Fields []model.FieldDiff `json:"fields,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

func (e *UnintendedMutationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validate: row %d (%s %q): unintended mutation", e.Row, e.Kind, e.Input)
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s %q -> %q", f.Field, f.Left, f.Right)
	}
	return b.String()
}

// HeaderMismatchError means input and output tables have different columns.
type HeaderMismatchError struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("validate: header mismatch: input [%s], output [%s]",
		strings.Join(e.Input, ","), strings.Join(e.Output, ","))
}

// UnmappedAliasWarning means a row whose technology is a known alias did not
// come out under the expected canonical name. It is advisory.
type UnmappedAliasWarning struct {
	Row      int    `json:"row"`
	Raw      string `json:"raw"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (w *UnmappedAliasWarning) Error() string {
	return fmt.Sprintf("validate: row %d: %q should map to %q, got %q", w.Row, w.Raw, w.Expected, w.Actual)
}
