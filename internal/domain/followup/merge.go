package followup

import (
	"errors"
	"fmt"

	"github.com/ufmn/followup/internal/platform/table"
)

var ErrNoSources = errors.New("no follow-up sources")

// JoinKeys identify one visit across sources.
var JoinKeys = []string{PatientIDColumn, VisitDateColumn}

// Merge full-outer-joins the per-source visit tables on (patient, visit
// date), in the given order. A visit recorded by any source appears in the
// result with nulls for the fields other sources did not report. Visits
// reported more than once are kept as separate rows; Fill reconciles them.
func Merge(sources ...*table.Table) (*table.Table, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	for i, src := range sources {
		if err := src.Require(JoinKeys...); err != nil {
			return nil, fmt.Errorf("merge source %d: %w", i, err)
		}
	}

	merged := sources[0].Clone()
	if err := merged.SetKeys(JoinKeys...); err != nil {
		return nil, err
	}
	for i, src := range sources[1:] {
		next, err := table.OuterJoin(merged, src, JoinKeys...)
		if err != nil {
			return nil, fmt.Errorf("merge source %d: %w", i+1, err)
		}
		merged = next
	}
	return merged, nil
}
