package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ufmn/followup/internal/domain/followup"
	"github.com/ufmn/followup/internal/platform/db"
	"github.com/ufmn/followup/internal/platform/metrics"
	"github.com/ufmn/followup/internal/platform/middleware"
	"github.com/ufmn/followup/internal/platform/reporting"
)

const refreshPath = "/api/v1/followups/refresh"

// newServer wires the middleware chain and every route. pinger may be nil
// when no database is configured.
func newServer(logger zerolog.Logger, svc *followup.Service, m *metrics.Metrics, pinger db.Pinger, timeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.Gzip())
	// Refreshes rerun the whole pipeline and are not bound by the request
	// deadline.
	e.Use(middleware.RequestTimeout(timeout, refreshPath))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}
	e.GET("/metrics", m.Handler())

	apiV1 := e.Group("/api/v1")
	followup.NewHandler(svc).RegisterRoutes(apiV1)
	reporting.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func runServer(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	a.metrics = metrics.New(nil)

	var repo followup.Repository
	if a.cfg.Persist {
		repo = followup.NewRepoPG(a.pool, a.cfg.DBSchema)
	}
	svc := followup.NewService(a.pipeline(), followup.Sources{Loader: a.loader}, a.cfg.Source, repo, logger)

	// Serve the last stored run straight away and rebuild from the sources
	// in the background.
	if repo != nil {
		if run, err := svc.Restore(ctx); err == nil {
			logger.Info().Str("run_id", run.ID.String()).Msg("restored follow-up snapshot")
		} else if !errors.Is(err, followup.ErrNoRun) {
			logger.Warn().Err(err).Msg("failed to restore follow-up snapshot")
		}
	}
	go func() {
		if _, err := svc.Refresh(ctx); err != nil {
			logger.Error().Err(err).Msg("initial follow-up load failed")
		}
	}()

	var pinger db.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	e := newServer(logger, svc, a.metrics, pinger, a.cfg.RequestTimeout)

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
