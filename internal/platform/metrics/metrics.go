// Package metrics holds the Prometheus instruments for the follow-up
// pipeline and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "followup"

// Pipeline stage labels.
const (
	StageLoaded = "loaded"
	StageMerged = "merged"
	StageFilled = "filled"
)

// Metrics is a set of instruments registered against one registry.
type Metrics struct {
	registry prometheus.Gatherer

	// PipelineRuns counts pipeline executions. Labels: result (ok, error).
	PipelineRuns *prometheus.CounterVec
	// PipelineDuration measures a full load, fuse and derive run.
	PipelineDuration prometheus.Histogram
	// Rows is the row count leaving each stage of the last run.
	Rows *prometheus.GaugeVec
	// Dropped counts rows removed during gap filling. Labels: reason.
	Dropped *prometheus.CounterVec

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the instruments on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Follow-up pipeline runs by result",
		}, []string{"result"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of a follow-up pipeline run",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows",
			Help:      "Rows leaving each pipeline stage in the last run",
		}, []string{"stage"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_rows_total",
			Help:      "Rows dropped while filling gaps",
		}, []string{"reason"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PipelineRuns.WithLabelValues(result).Inc()
	m.PipelineDuration.Observe(time.Since(start).Seconds())
}

// SetRows records the row count leaving a stage.
func (m *Metrics) SetRows(stage string, n int) {
	if m == nil {
		return
	}
	m.Rows.WithLabelValues(stage).Set(float64(n))
}

// AddDropped counts rows removed for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware counts requests and their latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
