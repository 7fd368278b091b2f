package followup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func serve(t *testing.T, svc *Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandler_NotLoaded(t *testing.T) {
	svc := newTestService(t, nil)
	for _, target := range []string{
		"/api/v1/followups",
		"/api/v1/followups/p1",
		"/api/v1/followups/p1/resampled",
		"/api/v1/stages",
	} {
		if rec := serve(t, svc, http.MethodGet, target); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", target, rec.Code)
		}
	}
}

func TestHandler_Refresh(t *testing.T) {
	svc := newTestService(t, nil)
	rec := serve(t, svc, http.MethodPost, "/api/v1/followups/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var run Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if run.Visits != 3 || len(run.Columns) == 0 {
		t.Errorf("unexpected run %+v", run)
	}
	if _, err := svc.Snapshot(); err != nil {
		t.Errorf("expected a snapshot after refresh: %v", err)
	}
}

func TestHandler_RefreshWithoutSources(t *testing.T) {
	p := &Pipeline{Logger: zerolog.Nop()}
	svc := NewService(p, Sources{}, "none", nil, zerolog.Nop())
	if rec := serve(t, svc, http.MethodPost, "/api/v1/followups/refresh"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandler_ListVisits(t *testing.T) {
	svc := refreshed(t, nil)
	rec := serve(t, svc, http.MethodGet, "/api/v1/followups?limit=1&offset=1&patient=p1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data    []map[string]any `json:"data"`
		Total   int              `json:"total"`
		HasMore bool             `json:"has_more"`
		Links   struct {
			Previous string `json:"previous"`
			Next     string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || resp.HasMore {
		t.Fatalf("expected the second of p1's 2 visits, got %d of %d", len(resp.Data), resp.Total)
	}
	if resp.Data[0][VisitDateColumn] != "2023-01-02" {
		t.Errorf("expected visit on 2023-01-02, got %v", resp.Data[0][VisitDateColumn])
	}
	if want := "/api/v1/followups?limit=1&offset=0&patient=p1"; resp.Links.Previous != want {
		t.Errorf("expected previous link %q, got %q", want, resp.Links.Previous)
	}
	if resp.Links.Next != "" {
		t.Errorf("expected no next link, got %q", resp.Links.Next)
	}
}

func TestHandler_GetTimeline(t *testing.T) {
	svc := refreshed(t, nil)
	rec := serve(t, svc, http.MethodGet, "/api/v1/followups/p2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		PatientID string           `json:"id_paciente"`
		RunID     string           `json:"run_id"`
		Visits    []map[string]any `json:"visits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.PatientID != "p2" || resp.RunID == "" || len(resp.Visits) != 1 {
		t.Fatalf("unexpected timeline %+v", resp)
	}
	if resp.Visits[0][ColKingsC] != float64(4) {
		t.Errorf("expected King's stage 4, got %v", resp.Visits[0][ColKingsC])
	}
	if resp.Visits[0][ColPortadorPEG] != nil {
		t.Errorf("expected null PEG status, got %v", resp.Visits[0][ColPortadorPEG])
	}

	if rec := serve(t, svc, http.MethodGet, "/api/v1/followups/nobody"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetResampled(t *testing.T) {
	svc := refreshed(t, nil)

	rec := serve(t, svc, http.MethodGet, "/api/v1/followups/p1/resampled?start=2023-01-01&freq=D")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Visits []map[string]any `json:"visits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Visits) != 2 || resp.Visits[1][ResampleDateColumn] != "2023-01-02" {
		t.Errorf("expected 2 daily rows ending 2023-01-02, got %v", resp.Visits)
	}

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"bad frequency", "/api/v1/followups/p1/resampled?freq=fortnight", http.StatusBadRequest},
		{"bad start", "/api/v1/followups/p1/resampled?start=01-2023", http.StatusBadRequest},
		{"unknown patient", "/api/v1/followups/nobody/resampled", http.StatusNotFound},
		{"default start", "/api/v1/followups/p1/resampled", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(t, svc, http.MethodGet, tt.target); rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestHandler_ListStageOnsets(t *testing.T) {
	svc := refreshed(t, nil)
	rec := serve(t, svc, http.MethodGet, "/api/v1/stages")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var onsets []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &onsets); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(onsets) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(onsets))
	}
	if onsets[0]["kings_0"] != "2023-01-01" || onsets[1]["kings_4"] != "2023-01-03" {
		t.Errorf("unexpected onsets %v", onsets)
	}
}
