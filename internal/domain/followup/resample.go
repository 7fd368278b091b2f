package followup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ufmn/followup/internal/platform/table"
)

var (
	ErrMultiplePatients = errors.New("timeline holds more than one patient")
	ErrDuplicateVisit   = errors.New("timeline has duplicate visit dates")
)

// Frequency is the spacing of resampled rows.
type Frequency struct {
	days   int
	months int
}

var (
	Daily   = Frequency{days: 1}
	Weekly  = Frequency{days: 7}
	Monthly = Frequency{months: 1}
)

// ParseFrequency accepts "D", "W", "M" and "<n>D". Grids are anchored at
// the resample start: "W" is every 7 days from start, not every Sunday, and
// "M" is the same day of each month, not month ends.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "":
		return Daily, nil
	case "W":
		return Weekly, nil
	case "M", "MS":
		return Monthly, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(strings.TrimSuffix(upper, "D")); err == nil && strings.HasSuffix(upper, "D") && n > 0 {
		return Frequency{days: n}, nil
	}
	return Frequency{}, fmt.Errorf("invalid resample frequency %q", s)
}

func (f Frequency) String() string {
	switch {
	case f == Daily:
		return "D"
	case f == Weekly:
		return "W"
	case f.months == 1 && f.days == 0:
		return "M"
	}
	return fmt.Sprintf("%dD", f.days)
}

// at returns the k-th sample date counted from start. Monthly steps keep
// start's day of month, clamped to the last day of shorter months.
func (f Frequency) at(start time.Time, k int) time.Time {
	t := start
	if f.months != 0 {
		t = start.AddDate(0, k*f.months, 0)
		if t.Day() != start.Day() {
			t = t.AddDate(0, 0, -t.Day())
		}
	}
	return t.AddDate(0, 0, k*f.days)
}

// ResampleTimeline re-indexes one patient's timeline onto every day from
// start through the last observed visit, carrying each column's last known
// value forward, and keeps the days falling on freq. A nil start means the
// last observed visit, which yields a single row. The output has the patient
// id, a "fecha" calendar date and every other input column except the visit
// date.
func ResampleTimeline(timeline *table.Table, start *time.Time, freq Frequency) (*table.Table, error) {
	if err := timeline.Require(JoinKeys...); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	var data []string
	for _, c := range timeline.Columns() {
		if c != PatientIDColumn && c != VisitDateColumn && c != ResampleDateColumn {
			data = append(data, c)
		}
	}
	out := table.New(append([]string{PatientIDColumn, ResampleDateColumn}, data...)...)
	if err := out.SetKeys(PatientIDColumn, ResampleDateColumn); err != nil {
		return nil, err
	}
	if timeline.Len() == 0 {
		return out, nil
	}

	pid := timeline.Get(0, PatientIDColumn)
	byDate := make(map[time.Time]int, timeline.Len())
	var end time.Time
	for i := 0; i < timeline.Len(); i++ {
		if !timeline.Get(i, PatientIDColumn).Equal(pid) {
			return nil, fmt.Errorf("%w: %s and %s", ErrMultiplePatients, pid, timeline.Get(i, PatientIDColumn))
		}
		d, ok := timeline.Get(i, VisitDateColumn).Time()
		if !ok {
			continue
		}
		if _, dup := byDate[d]; dup {
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateVisit, pid, d.Format(table.DateLayout))
		}
		byDate[d] = i
		if d.After(end) {
			end = d
		}
	}
	if len(byDate) == 0 {
		return out, nil
	}

	begin := end
	if start != nil && !start.IsZero() {
		begin, _ = table.Date(*start).Time()
	}

	carried := make([]table.Value, len(data))
	next, k := freq.at(begin, 0), 0
	for d := begin; !d.After(end); d = d.AddDate(0, 0, 1) {
		if i, ok := byDate[d]; ok {
			for j, c := range data {
				if v := timeline.Get(i, c); !v.IsNull() {
					carried[j] = v
				}
			}
		}
		if !d.Equal(next) {
			continue
		}
		row := append([]table.Value{pid, table.Date(d)}, carried...)
		if err := out.Append(row...); err != nil {
			return nil, err
		}
		k++
		next = freq.at(begin, k)
	}
	return out, nil
}

// Resample splits t by patient and resamples each timeline from its entry
// in starts (patients without one start at their last visit). Results are
// concatenated in patient order of first appearance.
func Resample(t *table.Table, starts map[string]time.Time, freq Frequency, workers int) (*table.Table, error) {
	if err := t.Require(JoinKeys...); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	patients, err := t.GroupBy(PatientIDColumn)
	if err != nil {
		return nil, err
	}

	results := make([]*table.Table, len(patients))
	var eg errgroup.Group
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for n, g := range patients {
		n, g := n, g
		eg.Go(func() error {
			timeline := t.Subset(g.Rows)
			if err := timeline.SortBy(VisitDateColumn); err != nil {
				return err
			}
			var start *time.Time
			if s, ok := starts[g.Key[0].String()]; ok {
				start = &s
			}
			res, err := ResampleTimeline(timeline, start, freq)
			if err != nil {
				return err
			}
			results[n] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		empty, err := ResampleTimeline(t.Subset(nil), nil, freq)
		if err != nil {
			return nil, err
		}
		return empty, nil
	}
	out, err := table.Concat(results...)
	if err != nil {
		return nil, err
	}
	if err := out.SetKeys(PatientIDColumn, ResampleDateColumn); err != nil {
		return nil, err
	}
	return out, nil
}

// StartDates reads per-patient start dates from a table with an id_paciente
// column and a date column. Rows with a null id or date are skipped.
func StartDates(t *table.Table, dateCol string) (map[string]time.Time, error) {
	if err := t.Require(PatientIDColumn, dateCol); err != nil {
		return nil, fmt.Errorf("start dates: %w", err)
	}
	starts := make(map[string]time.Time, t.Len())
	for i := 0; i < t.Len(); i++ {
		pid := t.Get(i, PatientIDColumn)
		d, ok := t.Get(i, dateCol).Time()
		if pid.IsNull() || !ok {
			continue
		}
		starts[pid.String()] = d
	}
	return starts, nil
}
