// Package costfile reads and writes technology cost tables as CSV or XLSX.
package costfile

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/techmap/internal/model"
)

// MissingColumnsError reports required columns absent from a header.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "costfile: missing required columns: " + strings.Join(e.Missing, ", ")
}

// FromRows builds a Dataset from a header and raw rows. Cells are kept
// verbatim; the value column is additionally parsed as a decimal when it
// holds a number.
func FromRows(header []string, rows [][]string) (model.Dataset, error) {
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := colIdx[name]; dup {
			return model.Dataset{}, eris.Errorf("costfile: duplicate column %q", name)
		}
		colIdx[name] = i
	}

	var missing []string
	for _, col := range model.RequiredColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return model.Dataset{}, &MissingColumnsError{Missing: missing}
	}

	ds := model.Dataset{
		Header:  slices.Clone(header),
		Records: make([]model.TechnologyRecord, 0, len(rows)),
	}
	for i, row := range rows {
		if len(row) > len(header) {
			return model.Dataset{}, eris.Errorf("costfile: row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		cell := func(col string) string {
			if j := colIdx[col]; j < len(row) {
				return row[j]
			}
			return ""
		}

		rec := model.TechnologyRecord{
			Technology:         cell(model.ColTechnology),
			Parameter:          cell(model.ColParameter),
			RawValue:           cell(model.ColValue),
			Unit:               cell(model.ColUnit),
			Source:             cell(model.ColSource),
			FurtherDescription: cell(model.ColFurtherDescription),
			CurrencyYear:       cell(model.ColCurrencyYear),
		}
		rec.Value = parseValue(rec.RawValue)

		for j, h := range header {
			name := strings.TrimSpace(h)
			if slices.Contains(model.RequiredColumns, name) {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			if j < len(row) {
				rec.Extra[name] = row[j]
			} else {
				rec.Extra[name] = ""
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

// ToRows lays a Dataset out in its header order.
func ToRows(ds model.Dataset) [][]string {
	rows := make([][]string, len(ds.Records))
	for i, rec := range ds.Records {
		row := make([]string, len(ds.Header))
		for j, h := range ds.Header {
			row[j] = field(rec, strings.TrimSpace(h))
		}
		rows[i] = row
	}
	return rows
}

func field(rec model.TechnologyRecord, col string) string {
	switch col {
	case model.ColTechnology:
		return rec.Technology
	case model.ColParameter:
		return rec.Parameter
	case model.ColValue:
		if rec.RawValue == "" && rec.Value.Valid {
			return rec.Value.Decimal.String()
		}
		return rec.RawValue
	case model.ColUnit:
		return rec.Unit
	case model.ColSource:
		return rec.Source
	case model.ColFurtherDescription:
		return rec.FurtherDescription
	case model.ColCurrencyYear:
		return rec.CurrencyYear
	default:
		return rec.Extra[col]
	}
}

// parseValue reads a numeric cell. Blank or non-numeric text yields an
// invalid NullDecimal; the raw text is kept either way.
func parseValue(raw string) decimal.NullDecimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
