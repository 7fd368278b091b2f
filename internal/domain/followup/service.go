package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ufmn/followup/internal/platform/table"
)

var (
	ErrNoSnapshot      = errors.New("follow-up data has not been loaded")
	ErrPatientNotFound = errors.New("patient not found")
)

// Snapshot is an immutable fused follow-up table with its derived views.
type Snapshot struct {
	Run    Run
	Visits *table.Table
	Onsets *table.Table

	byPatient map[string][]int
}

func newSnapshot(run Run, visits *table.Table) (*Snapshot, error) {
	onsets, err := StageOnsets(visits)
	if err != nil {
		return nil, err
	}
	groups, err := visits.GroupBy(PatientIDColumn)
	if err != nil {
		return nil, err
	}
	byPatient := make(map[string][]int, len(groups))
	for _, g := range groups {
		byPatient[g.Key[0].String()] = g.Rows
	}
	return &Snapshot{Run: run, Visits: visits, Onsets: onsets, byPatient: byPatient}, nil
}

// Service holds the latest fused snapshot and refreshes it on demand.
type Service struct {
	pipeline *Pipeline
	sources  Sources
	source   string
	repo     Repository
	logger   zerolog.Logger

	refreshMu sync.Mutex
	mu        sync.RWMutex
	snap      *Snapshot
}

// NewService builds a service over src. source names the loader kind for
// run records. repo may be nil, in which case runs are not persisted.
func NewService(pipeline *Pipeline, src Sources, source string, repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		sources:  src,
		source:   source,
		repo:     repo,
		logger:   logger,
	}
}

// Refresh reruns the pipeline, persists the result when a repository is
// configured and swaps it in. Concurrent calls run one at a time; readers
// keep seeing the previous snapshot until the swap.
func (s *Service) Refresh(ctx context.Context) (*Run, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	run := Run{ID: uuid.New(), Source: s.source, StartedAt: time.Now().UTC()}
	visits, stats, err := s.pipeline.Fuse(ctx, s.sources)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("follow-up refresh failed")
		return nil, err
	}
	run.FinishedAt = time.Now().UTC()
	run.Visits = visits.Len()
	run.Patients = countPatients(visits)
	run.DroppedMissingIDs = stats.DroppedMissingIDs
	run.DroppedDuplicates = stats.DroppedDuplicates
	run.Columns = columnsOf(visits)

	snap, err := newSnapshot(run, visits)
	if err != nil {
		return nil, err
	}
	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, &run, visits); err != nil {
			return nil, fmt.Errorf("persist run %s: %w", run.ID, err)
		}
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info().
		Str("run_id", run.ID.String()).
		Int("visits", run.Visits).
		Int("patients", run.Patients).
		Bool("persisted", s.repo != nil).
		Msg("follow-up snapshot refreshed")
	return &run, nil
}

// Restore loads the latest persisted run as the current snapshot.
func (s *Service) Restore(ctx context.Context) (*Run, error) {
	if s.repo == nil {
		return nil, ErrNoRun
	}
	run, visits, err := s.repo.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := newSnapshot(*run, visits)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return run, nil
}

// Snapshot returns the current snapshot or ErrNoSnapshot.
func (s *Service) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrNoSnapshot
	}
	return s.snap, nil
}

// Visits returns the fused table of the current snapshot.
func (s *Service) Visits(context.Context) (*table.Table, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Visits, nil
}

// List returns a page of visits, optionally restricted to one patient, and
// the total number of matching visits.
func (s *Service) List(patient string, limit, offset int) ([]map[string]table.Value, int, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, 0, err
	}

	var rows []int
	if patient != "" {
		rows = snap.byPatient[patient]
	} else {
		rows = make([]int, snap.Visits.Len())
		for i := range rows {
			rows[i] = i
		}
	}

	total := len(rows)
	lo := min(offset, total)
	hi := min(lo+limit, total)
	page := make([]map[string]table.Value, 0, hi-lo)
	for _, i := range rows[lo:hi] {
		page = append(page, snap.Visits.Record(i))
	}
	return page, total, nil
}

// Timeline returns one patient's visits in date order.
func (s *Service) Timeline(patient string) (*table.Table, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	rows, ok := snap.byPatient[patient]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patient)
	}
	timeline := snap.Visits.Subset(rows)
	if err := timeline.SortBy(VisitDateColumn); err != nil {
		return nil, err
	}
	return timeline, nil
}

// Resampled returns one patient's timeline on a regular calendar grid
// starting at start (their last visit when nil).
func (s *Service) Resampled(patient string, start *time.Time, freq Frequency) (*table.Table, error) {
	timeline, err := s.Timeline(patient)
	if err != nil {
		return nil, err
	}
	return ResampleTimeline(timeline, start, freq)
}

// StageOnsets returns the stage onset table of the current snapshot.
func (s *Service) StageOnsets() (*table.Table, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Onsets, nil
}
