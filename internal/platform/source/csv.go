package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ufmn/followup/internal/platform/table"
)

// ReadCSV parses a comma-separated file whose first record is the header.
func ReadCSV(r io.Reader, schema Schema) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: no header")
	}
	header := records[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return build(header, records[1:], schema)
}

// WriteCSV writes columns of t, in order, with a header record. A nil
// columns slice writes every column.
func WriteCSV(w io.Writer, t *table.Table, columns []string) error {
	if columns == nil {
		columns = t.Columns()
	}
	if err := t.Require(columns...); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(columns))
	for i := 0; i < t.Len(); i++ {
		for j, c := range columns {
			rec[j] = t.Get(i, c).String()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
