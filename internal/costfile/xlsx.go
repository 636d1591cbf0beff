package costfile

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/techmap/internal/model"
)

// DefaultSheet names the sheet written when none is configured.
const DefaultSheet = "costs"

// XLSXOptions selects the worksheet holding the cost table.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads a cost table from a worksheet. The first row is the header.
func ReadXLSX(path string, opts XLSXOptions) (model.Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return model.Dataset{}, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return model.Dataset{}, err
	}
	if len(sheet.Rows) == 0 {
		return model.Dataset{}, eris.Errorf("xlsx: sheet %q is empty, no header row", sheet.Name)
	}

	header := rowToStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		rows = append(rows, rowToStrings(row))
	}
	return FromRows(header, rows)
}

// WriteXLSX writes ds to a single-sheet workbook. Every cell is written as
// text so values round-trip verbatim.
func WriteXLSX(path string, ds model.Dataset, opts XLSXOptions) error {
	name := opts.SheetName
	if name == "" {
		name = DefaultSheet
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", name)
	}

	addRow(sheet, ds.Header)
	for _, row := range ToRows(ds) {
		addRow(sheet, row)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save file")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
