package followup

import (
	"context"
	"errors"

	"github.com/ufmn/followup/internal/platform/table"
)

var ErrNoRun = errors.New("no follow-up run stored")

// Repository persists fused follow-up tables.
type Repository interface {
	// SaveRun stores run and its visits atomically.
	SaveRun(ctx context.Context, run *Run, visits *table.Table) error
	// LatestRun returns the most recently finished run, or ErrNoRun.
	LatestRun(ctx context.Context) (*Run, *table.Table, error)
}
