// Package reporting evaluates cohort measures over the fused follow-up
// table.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ufmn/followup/internal/platform/table"
)

const (
	patientColumn = "id_paciente"
	dateColumn    = "fecha_visita"
	maxStage      = 4
)

// Result is one row of a measure evaluation.
type Result map[string]interface{}

// MeasureDefinition describes a measure and how to compute it.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`

	eval func(t *table.Table, params map[string]string) ([]Result, error)
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string            `json:"measure_id"`
	MeasureName string            `json:"measure_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	Results     []Result          `json:"results"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "followup-coverage",
		Name:        "Follow-up Coverage",
		Description: "Patients with at least one and at least two follow-up visits",
		Parameters:  []string{},
		eval:        followupCoverage,
	},
	{
		ID:          "stage-reached",
		Name:        "Stage Reached",
		Description: "Patients observed at each stage of a staging score at any visit (score=kings|mitos)",
		Parameters:  []string{"score"},
		eval:        stageReached,
	},
	{
		ID:          "current-stage",
		Name:        "Current Stage",
		Description: "Patients by the stage recorded at their latest staged visit (score=kings|mitos)",
		Parameters:  []string{"score"},
		eval:        currentStage,
	},
	{
		ID:          "ambulation-support",
		Name:        "Ambulation Support",
		Description: "Patients with a walking item score of 2 or less at any visit",
		Parameters:  []string{},
		eval:        ambulationSupport,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluate runs the measure over t.
func (m *MeasureDefinition) Evaluate(t *table.Table, params map[string]string) (*MeasureReport, error) {
	results, err := m.eval(t, params)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []Result{}
	}
	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Parameters:  params,
	}, nil
}

// ErrInvalidParameter marks a bad measure parameter.
var ErrInvalidParameter = errors.New("invalid measure parameter")

func scoreColumn(params map[string]string) (string, error) {
	switch params["score"] {
	case "", "kings":
		return "kings_c", nil
	case "mitos":
		return "mitos_c", nil
	}
	return "", fmt.Errorf("%w: score=%q", ErrInvalidParameter, params["score"])
}

func followupCoverage(t *table.Table, _ map[string]string) ([]Result, error) {
	groups, err := t.GroupBy(patientColumn)
	if err != nil {
		return nil, err
	}
	var two int
	for _, g := range groups {
		if len(g.Rows) >= 2 {
			two++
		}
	}
	return []Result{
		{"min_visits": 1, "patients": len(groups)},
		{"min_visits": 2, "patients": two},
	}, nil
}

func stageReached(t *table.Table, params map[string]string) ([]Result, error) {
	col, err := scoreColumn(params)
	if err != nil {
		return nil, err
	}
	if err := t.Require(col); err != nil {
		return nil, err
	}
	groups, err := t.GroupBy(patientColumn)
	if err != nil {
		return nil, err
	}

	var staged int
	var reached [maxStage + 1]int
	for _, g := range groups {
		var seen [maxStage + 1]bool
		hasStage := false
		for _, i := range g.Rows {
			n, ok := t.Get(i, col).Int()
			if !ok || n < 0 || n > maxStage {
				continue
			}
			seen[n] = true
			hasStage = true
		}
		if hasStage {
			staged++
		}
		for n, ok := range seen {
			if ok {
				reached[n]++
			}
		}
	}

	results := []Result{{"stage": "any", "patients": staged}}
	for n, count := range reached {
		results = append(results, Result{"stage": n, "patients": count})
	}
	return results, nil
}

func currentStage(t *table.Table, params map[string]string) ([]Result, error) {
	col, err := scoreColumn(params)
	if err != nil {
		return nil, err
	}
	if err := t.Require(col, dateColumn); err != nil {
		return nil, err
	}
	groups, err := t.GroupBy(patientColumn)
	if err != nil {
		return nil, err
	}

	var counts [maxStage + 1]int
	for _, g := range groups {
		var latest time.Time
		stage := int64(-1)
		for _, i := range g.Rows {
			n, ok := t.Get(i, col).Int()
			d, dated := t.Get(i, dateColumn).Time()
			if !ok || !dated || n < 0 || n > maxStage {
				continue
			}
			if stage < 0 || !d.Before(latest) {
				latest, stage = d, n
			}
		}
		if stage >= 0 {
			counts[stage]++
		}
	}

	results := make([]Result, 0, len(counts))
	for n, count := range counts {
		results = append(results, Result{"stage": n, "patients": count})
	}
	return results, nil
}

func ambulationSupport(t *table.Table, _ map[string]string) ([]Result, error) {
	if err := t.Require("caminar"); err != nil {
		return nil, err
	}
	groups, err := t.GroupBy(patientColumn)
	if err != nil {
		return nil, err
	}
	var count int
	for _, g := range groups {
		for _, i := range g.Rows {
			if n, ok := t.Get(i, "caminar").Int(); ok && n <= 2 {
				count++
				break
			}
		}
	}
	return []Result{{"patients": count}}, nil
}

// Source provides the table measures are evaluated over.
type Source interface {
	Visits(ctx context.Context) (*table.Table, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports")
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure evaluates a measure over the current follow-up table.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	visits, err := h.src.Visits(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	report, err := measure.Evaluate(visits, params)
	if errors.Is(err, ErrInvalidParameter) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("evaluate measure: %v", err))
	}
	return c.JSON(http.StatusOK, report)
}
