package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ufmn/followup/internal/platform/table"
)

// DirLoader reads datasets from files under Dir. Dataset "ufmn/als_data"
// resolves to Dir/ufmn/als_data.csv, falling back to .xlsx.
type DirLoader struct {
	Dir    string
	Schema Schema
	Excel  ExcelOptions
}

func NewDirLoader(dir string, schema Schema) *DirLoader {
	return &DirLoader{Dir: dir, Schema: schema}
}

func (l *DirLoader) Load(_ context.Context, dataset string) (*table.Table, error) {
	if dataset == "" || strings.Contains(dataset, "..") {
		return nil, fmt.Errorf("invalid dataset name %q", dataset)
	}
	base := filepath.Join(l.Dir, filepath.FromSlash(dataset))

	if f, err := os.Open(base + ".csv"); err == nil {
		defer f.Close()
		t, err := ReadCSV(f, l.Schema)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dataset, err)
		}
		return t, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}

	f, err := os.Open(base + ".xlsx")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s under %s", ErrDatasetNotFound, dataset, l.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}
	defer f.Close()
	t, err := ReadExcel(f, l.Excel, l.Schema)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}
	return t, nil
}
