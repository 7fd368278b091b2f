package followup

import (
	"fmt"
	"time"

	"github.com/ufmn/followup/internal/platform/table"
)

// MaxStage is the highest King's and MiToS stage.
const MaxStage = 4

// StageOnsetColumns lists the columns of StageOnsets after the patient id:
// kings_0..kings_4 then mitos_0..mitos_4.
var StageOnsetColumns = func() []string {
	var cols []string
	for _, prefix := range []string{"kings", "mitos"} {
		for n := 0; n <= MaxStage; n++ {
			cols = append(cols, fmt.Sprintf("%s_%d", prefix, n))
		}
	}
	return cols
}()

// StageOnsets returns, per patient ordered by id, the first visit date at
// which each King's and MiToS stage was observed. Stages never reached are
// null. A patient can reach a later stage before an earlier one.
func StageOnsets(t *table.Table) (*table.Table, error) {
	if err := t.Require(PatientIDColumn, VisitDateColumn, ColKingsC, ColMitosC); err != nil {
		return nil, fmt.Errorf("stage onsets: %w", err)
	}

	out := table.New(append([]string{PatientIDColumn}, StageOnsetColumns...)...)
	patients, err := t.GroupBy(PatientIDColumn)
	if err != nil {
		return nil, err
	}
	for _, g := range patients {
		row := make([]table.Value, 1+len(StageOnsetColumns))
		row[0] = g.Key[0]
		for _, i := range g.Rows {
			d, ok := t.Get(i, VisitDateColumn).Time()
			if !ok {
				continue
			}
			for offset, col := range []string{ColKingsC, ColMitosC} {
				n, ok := t.Get(i, col).Int()
				if !ok || n < 0 || n > MaxStage {
					continue
				}
				slot := 1 + offset*(MaxStage+1) + int(n)
				if earlier(row[slot], d) {
					continue
				}
				row[slot] = table.Date(d)
			}
		}
		if err := out.Append(row...); err != nil {
			return nil, err
		}
	}

	if err := out.SortBy(PatientIDColumn); err != nil {
		return nil, err
	}
	if err := out.SetKeys(PatientIDColumn); err != nil {
		return nil, err
	}
	return out, nil
}

// earlier reports whether v holds a date on or before d.
func earlier(v table.Value, d time.Time) bool {
	cur, ok := v.Time()
	return ok && !cur.After(d)
}
