package followup

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
	"github.com/ufmn/followup/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/followups/refresh", h.Refresh)
	api.GET("/followups", h.ListVisits)
	api.GET("/followups/:patient", h.GetTimeline)
	api.GET("/followups/:patient/resampled", h.GetResampled)
	api.GET("/stages", h.ListStageOnsets)
}

// TimelineResponse is one patient's visits.
type TimelineResponse struct {
	PatientID string                   `json:"id_paciente"`
	RunID     string                   `json:"run_id"`
	Visits    []map[string]table.Value `json:"visits"`
}

func (h *Handler) Refresh(c echo.Context) error {
	run, err := h.svc.Refresh(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrNoSources) || errors.Is(err, source.ErrDatasetNotFound) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListVisits(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.QueryParam("patient"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) GetTimeline(c echo.Context) error {
	patient := c.Param("patient")
	timeline, err := h.svc.Timeline(patient)
	if err != nil {
		return httpError(err)
	}
	return h.timeline(c, patient, timeline)
}

// GetResampled returns the patient's timeline on a calendar grid. Query
// parameters: start (YYYY-MM-DD, defaults to the last visit) and freq
// (D, W, M or <n>D; defaults to D).
func (h *Handler) GetResampled(c echo.Context) error {
	freq, err := ParseFrequency(c.QueryParam("freq"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var start *time.Time
	if s := c.QueryParam("start"); s != "" {
		d, err := time.Parse(table.DateLayout, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start must be a YYYY-MM-DD date")
		}
		start = &d
	}

	patient := c.Param("patient")
	resampled, err := h.svc.Resampled(patient, start, freq)
	if err != nil {
		return httpError(err)
	}
	return h.timeline(c, patient, resampled)
}

func (h *Handler) ListStageOnsets(c echo.Context) error {
	onsets, err := h.svc.StageOnsets()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records(onsets))
}

func (h *Handler) timeline(c echo.Context, patient string, t *table.Table) error {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, TimelineResponse{
		PatientID: patient,
		RunID:     snap.Run.ID.String(),
		Visits:    records(t),
	})
}

func records(t *table.Table) []map[string]table.Value {
	out := make([]map[string]table.Value, t.Len())
	for i := range out {
		out[i] = t.Record(i)
	}
	return out
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
