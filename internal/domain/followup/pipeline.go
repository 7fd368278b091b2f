package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ufmn/followup/internal/platform/metrics"
	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
)

// Sources supplies the three follow-up datasets. Tables that are already
// loaded are used as-is; the rest are read through Loader.
type Sources struct {
	Loader      source.Loader
	ALS         *table.Table
	Nutrition   *table.Table
	Respiratory *table.Table
}

func (s Sources) load(ctx context.Context, dataset string, preloaded *table.Table) (*table.Table, error) {
	if preloaded != nil {
		return preloaded, nil
	}
	if s.Loader == nil {
		return nil, fmt.Errorf("%s: %w", dataset, ErrNoSources)
	}
	t, err := s.Loader.Load(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}
	return t, nil
}

// Pipeline runs merge, fill and derive over the follow-up sources.
type Pipeline struct {
	Workers int
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// LoadFollowupData builds the fused, gap-filled and staged follow-up table.
func (p *Pipeline) LoadFollowupData(ctx context.Context, src Sources) (*table.Table, error) {
	out, _, err := p.Fuse(ctx, src)
	return out, err
}

// Fuse is LoadFollowupData that also reports what gap filling removed.
func (p *Pipeline) Fuse(ctx context.Context, src Sources) (out *table.Table, stats FillStats, err error) {
	start := time.Now()
	defer func() { p.Metrics.ObserveRun(start, err) }()

	als, err := src.load(ctx, DatasetALS, src.ALS)
	if err != nil {
		return nil, stats, err
	}
	nutr, err := src.load(ctx, DatasetNutrition, src.Nutrition)
	if err != nil {
		return nil, stats, err
	}
	resp, err := src.load(ctx, DatasetRespiratory, src.Respiratory)
	if err != nil {
		return nil, stats, err
	}
	p.Metrics.SetRows(metrics.StageLoaded, als.Len()+nutr.Len()+resp.Len())

	merged, err := Merge(als, nutr, resp)
	if err != nil {
		return nil, stats, err
	}
	// Visits are processed in (patient, date) order regardless of source
	// order.
	if err = merged.SortBy(JoinKeys...); err != nil {
		return nil, stats, err
	}
	p.Metrics.SetRows(metrics.StageMerged, merged.Len())

	if err = ctx.Err(); err != nil {
		return nil, stats, err
	}

	filled, stats, err := Fill(merged, CarryForwardColumns, p.Workers)
	if err != nil {
		return nil, stats, err
	}
	p.Metrics.SetRows(metrics.StageFilled, filled.Len())
	p.Metrics.AddDropped("missing_id", stats.DroppedMissingIDs)
	p.Metrics.AddDropped("duplicate", stats.DroppedDuplicates)
	if stats.DroppedMissingIDs > 0 {
		p.Logger.Debug().
			Int("rows", stats.DroppedMissingIDs).
			Msg("dropped visits without patient or date")
	}

	out, err = Derive(filled)
	if err != nil {
		return nil, stats, err
	}

	p.Logger.Info().
		Int("als", als.Len()).
		Int("nutrition", nutr.Len()).
		Int("respiratory", resp.Len()).
		Int("merged", merged.Len()).
		Int("visits", out.Len()).
		Int("duplicates", stats.DroppedDuplicates).
		Dur("elapsed", time.Since(start)).
		Msg("follow-up data loaded")
	return out, stats, nil
}

// LoadFollowupData runs the pipeline sequentially without logging.
func LoadFollowupData(ctx context.Context, src Sources) (*table.Table, error) {
	p := &Pipeline{Logger: zerolog.Nop()}
	return p.LoadFollowupData(ctx, src)
}

// Export joins the follow-ups with the patient registry and keeps the
// export columns, in order.
func Export(followups, patients *table.Table) (*table.Table, error) {
	if patients == nil {
		return nil, errors.New("export: no patient table")
	}
	joined, err := table.InnerJoin(followups, patients, PatientIDColumn)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	out, err := joined.Select(ExportColumns...)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}
