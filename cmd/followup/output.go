package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
)

// writeTable writes t to path: "-" is CSV on stdout, a .xlsx suffix is a
// workbook with one sheet named sheet, anything else is CSV.
func writeTable(path string, t *table.Table, sheet string) error {
	if path == "-" || path == "" {
		return encodeTable(os.Stdout, t, false, sheet)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	excel := strings.EqualFold(filepath.Ext(path), ".xlsx")
	if err := encodeTable(f, t, excel, sheet); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeTable(w io.Writer, t *table.Table, excel bool, sheet string) error {
	if excel {
		return source.WriteExcel(w, t, nil, sheet)
	}
	return source.WriteCSV(w, t, nil)
}
