package report

import (
	"fmt"
	"strings"

	"github.com/sells-group/techmap/internal/model"
)

// Markdown renders a human-readable report.
func Markdown(rep *StructuredReport) string {
	var b strings.Builder

	b.WriteString("# Storage Technology Mapping Report\n")
	fmt.Fprintf(&b, "Status: %s\n", statusLine(rep.Status))
	if rep.RegistryDigest != "" {
		fmt.Fprintf(&b, "Registry: %s\n", shortDigest(rep.RegistryDigest))
	}
	if rep.DuplicatePolicy != "" {
		fmt.Fprintf(&b, "Duplicate policy: %s\n", rep.DuplicatePolicy)
	}
	b.WriteString("\n")

	s := rep.Summary
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Rows: %d in, %d out\n", s.InputRows, s.OutputRows)
	fmt.Fprintf(&b, "- Mapped: %d, Excluded: %d, Unrecognized: %d\n", s.Mapped, s.Excluded, s.Unrecognized)
	fmt.Fprintf(&b, "- Technologies: %d before, %d after\n", s.TechnologiesBefore, s.TechnologiesAfter)
	fmt.Fprintf(&b, "- Entries changed: %d\n\n", s.EntriesChanged)

	b.WriteString("## Mapping Changes\n")
	changed := false
	for _, f := range rep.Families {
		if len(f.Pairs) == 0 {
			continue
		}
		changed = true
		fmt.Fprintf(&b, "### %s (%d variants, %d rows)\n", f.Family, f.Variants, f.RowsChanged)
		for _, p := range f.Pairs {
			fmt.Fprintf(&b, "- %s -> %s (%d)\n", p.Raw, p.Canonical, p.Rows)
		}
	}
	if !changed {
		b.WriteString("No technology names changed.\n")
	}
	b.WriteString("\n")

	b.WriteString("## Excluded Technologies (not mapped)\n")
	if len(rep.Excluded) == 0 {
		b.WriteString("None found.\n")
	}
	for _, e := range rep.Excluded {
		fmt.Fprintf(&b, "- %s [%s] (%d)\n", e.Technology, e.Category, e.Rows)
	}
	b.WriteString("\n")

	if len(rep.Duplicates) > 0 {
		b.WriteString("## Duplicate Keys\n")
		for _, d := range rep.Duplicates {
			fmt.Fprintf(&b, "- **%s / %s**: rows %s\n", d.Technology, d.Parameter, joinInts(d.Rows))
			for i := range d.Rows {
				fmt.Fprintf(&b, "  - %s = %s (%s)\n", d.RawNames[i], d.RawValues[i], d.Sources[i])
			}
			if d.Conflicting() {
				fmt.Fprintf(&b, "  - spread: %s\n", d.Spread.String())
			}
		}
		b.WriteString("\n")
	}

	if len(rep.Hinted) > 0 {
		b.WriteString("## Unrecognized Storage-Like Technologies\n")
		for _, h := range rep.Hinted {
			fmt.Fprintf(&b, "- %s (matched %q, %d rows)\n", h.Technology, h.Hint, h.Rows)
		}
		b.WriteString("\n")
	}

	if v := rep.Validation; v != nil && v.RowCount != nil {
		b.WriteString("## Row Count Mismatch\n")
		for _, r := range v.RowCount.Missing {
			fmt.Fprintf(&b, "- missing row %d: %s / %s = %s\n", r.Row, r.Technology, r.Parameter, r.Value)
		}
		for _, r := range v.RowCount.Extra {
			fmt.Fprintf(&b, "- extra row %d: %s / %s = %s\n", r.Row, r.Technology, r.Parameter, r.Value)
		}
		b.WriteString("\n")
	}

	if len(rep.Errors) > 0 {
		b.WriteString("## Errors\n")
		for _, e := range rep.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	if len(rep.Warnings) > 0 {
		b.WriteString("## Warnings\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

func statusLine(s model.RunStatus) string {
	switch s {
	case model.RunStatusSuccess:
		return "PASSED"
	case model.RunStatusSuccessWithWarnings:
		return "PASSED WITH WARNINGS"
	case model.RunStatusFailure:
		return "FAILED (output not published)"
	default:
		return string(s)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
