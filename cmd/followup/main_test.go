package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ufmn/followup/internal/config"
	"github.com/ufmn/followup/internal/domain/followup"
	"github.com/ufmn/followup/internal/platform/metrics"
	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(followup.PatientIDColumn, followup.VisitDateColumn, followup.ColKingsC)
	d := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	if err := tbl.Append(table.String("p1"), table.Date(d), table.Int(2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.Append(table.String("p2"), table.Date(d), table.Null()); err != nil {
		t.Fatalf("append: %v", err)
	}
	return tbl
}

func TestWriteTable_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := writeTable(path, sampleTable(t), "followup"); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "id_paciente,fecha_visita,kings_c\np1,2023-03-01,2\np2,2023-03-01,\n"
	if string(data) != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, data)
	}
}

func TestWriteTable_Excel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.XLSX")
	if err := writeTable(path, sampleTable(t), "stages"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := source.ReadExcel(f, source.ExcelOptions{Sheet: "stages"}, source.Schema(followup.Schema()))
	if err != nil {
		t.Fatalf("read workbook: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Len())
	}
	if v := got.Get(0, followup.ColKingsC); !v.Equal(table.Int(2)) {
		t.Errorf("expected kings_c 2, got %v", v)
	}
	if v := got.Get(1, followup.ColKingsC); !v.IsNull() {
		t.Errorf("expected null kings_c, got %v", v)
	}
}

func TestWriteTable_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.csv")
	if err := writeTable(path, sampleTable(t), ""); err == nil {
		t.Error("expected error for an unwritable path")
	}
}

func TestLoaderSchema(t *testing.T) {
	schema, err := loaderSchema("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema[followup.VisitDateColumn] != table.KindDate {
		t.Errorf("expected fecha_visita to be a date, got %s", schema[followup.VisitDateColumn])
	}

	path := filepath.Join(t.TempDir(), "schema.yaml")
	doc := "columns:\n  fecha_inicio: date\n  lenguaje: float\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	schema, err = loaderSchema(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema["fecha_inicio"] != table.KindDate || schema[followup.ColLenguaje] != table.KindFloat {
		t.Errorf("expected the schema file to override, got %v", schema)
	}

	if _, err := loaderSchema(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing schema file")
	}
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&config.Config{Env: "production", LogLevel: "warn"})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", logger.GetLevel())
	}
	logger = newLogger(&config.Config{Env: "production", LogLevel: "nonsense"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level fallback, got %s", logger.GetLevel())
	}
}

func TestNewServer_Routes(t *testing.T) {
	p := &followup.Pipeline{Logger: zerolog.Nop()}
	svc := followup.NewService(p, followup.Sources{Loader: source.MapLoader{}}, "memory", nil, zerolog.Nop())
	e := newServer(zerolog.Nop(), svc, metrics.New(nil), nil, time.Second)

	tests := []struct {
		method string
		target string
		code   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/db", http.StatusNotFound},
		{http.MethodGet, "/api/v1/followups", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/reports/measures", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/measures/followup-coverage/evaluate", http.StatusServiceUnavailable},
		{http.MethodPost, refreshPath, http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil).WithContext(context.Background()))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("expected a request id header")
			}
		})
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `followup_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Error("expected the health request to be counted")
	}
}
