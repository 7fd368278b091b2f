// Package source loads named datasets into tables and writes tables back
// out. Loaders know nothing about the follow-up domain beyond a Schema that
// types the columns they read.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ufmn/followup/internal/platform/table"
)

var ErrDatasetNotFound = errors.New("dataset not found")

// Loader returns the table for a named dataset such as "ufmn/als_data".
type Loader interface {
	Load(ctx context.Context, dataset string) (*table.Table, error)
}

// MapLoader serves already-loaded tables. Each Load returns a copy.
type MapLoader map[string]*table.Table

func (m MapLoader) Load(_ context.Context, dataset string) (*table.Table, error) {
	t, ok := m[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, dataset)
	}
	return t.Clone(), nil
}
