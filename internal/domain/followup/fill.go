package followup

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ufmn/followup/internal/platform/table"
)

// FillStats reports what Fill removed.
type FillStats struct {
	DroppedMissingIDs int
	DroppedDuplicates int
}

// Fill reconciles a merged follow-up table:
//
//  1. forward-fills carryForward within each patient, in row order;
//  2. drops rows without a patient or visit date;
//  3. back-fills every other column within each (patient, visit date) so a
//     visit reported piecemeal by several sources is homogenized;
//  4. keeps the first row of each (patient, visit date).
//
// Callers that need date order must sort before calling. The input is not
// modified. Patient groups are processed by up to workers goroutines.
func Fill(t *table.Table, carryForward []string, workers int) (*table.Table, FillStats, error) {
	var stats FillStats
	if err := t.Require(JoinKeys...); err != nil {
		return nil, stats, fmt.Errorf("fill: %w", err)
	}

	out := t.Clone()
	for _, c := range carryForward {
		out.AddColumn(c)
	}

	patients, err := out.GroupBy(PatientIDColumn)
	if err != nil {
		return nil, stats, err
	}
	if err := eachGroup(patients, workers, func(g table.Group) error {
		out.FillForward(g.Rows, carryForward...)
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if stats.DroppedMissingIDs, err = out.DropNull(JoinKeys...); err != nil {
		return nil, stats, err
	}

	visits, err := out.GroupBy(JoinKeys...)
	if err != nil {
		return nil, stats, err
	}
	values := valueColumns(out)
	if err := eachGroup(visits, workers, func(g table.Group) error {
		if len(g.Rows) > 1 {
			out.FillBackward(g.Rows, values...)
		}
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if stats.DroppedDuplicates, err = out.DropDuplicates(JoinKeys...); err != nil {
		return nil, stats, err
	}
	if err := out.SetKeys(JoinKeys...); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// eachGroup runs fn over every group and returns the first error. Groups
// own disjoint rows, so fn may write to its rows without locking.
func eachGroup(groups []table.Group, workers int, fn func(table.Group) error) error {
	if workers <= 1 {
		for _, g := range groups {
			if err := fn(g); err != nil {
				return err
			}
		}
		return nil
	}
	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			return fn(g)
		})
	}
	return eg.Wait()
}

func valueColumns(t *table.Table) []string {
	var cols []string
	for _, c := range t.Columns() {
		if c != PatientIDColumn && c != VisitDateColumn {
			cols = append(cols, c)
		}
	}
	return cols
}
