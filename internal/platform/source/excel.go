package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ufmn/followup/internal/platform/table"
)

// ExcelOptions locate the data inside a workbook.
type ExcelOptions struct {
	// Sheet defaults to the first sheet.
	Sheet string
	// HeaderRow is the 1-based row holding column names; rows above it are
	// ignored. Defaults to 1.
	HeaderRow int
}

// ReadExcel parses one sheet of an .xlsx workbook.
func ReadExcel(r io.Reader, opts ExcelOptions, schema Schema) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("sheet %s: header row %d not found", sheet, headerRow)
	}
	return build(rows[headerRow-1], rows[headerRow:], schema)
}

// WriteExcel writes columns of t to a single-sheet workbook.
func WriteExcel(w io.Writer, t *table.Table, columns []string, sheet string) error {
	if columns == nil {
		columns = t.Columns()
	}
	if err := t.Require(columns...); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()

	if name := f.GetSheetName(0); name != sheet {
		if err := f.SetSheetName(name, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := 0; i < t.Len(); i++ {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			row[j] = excelCell(t.Get(i, c))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func excelCell(v table.Value) interface{} {
	switch v.Kind() {
	case table.KindNull:
		return nil
	case table.KindInt:
		n, _ := v.Int()
		return n
	case table.KindFloat:
		f, _ := v.Float()
		return f
	case table.KindBool:
		b, _ := v.Bool()
		return b
	}
	return v.String()
}
