// Package server exposes the pipeline stages over HTTP so a form-submit
// webhook or an external scheduler can trigger them, together with a health
// probe and the Prometheus scrape endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"profileflow/internal/core"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline is the subset of core.Service the server drives.
type Pipeline interface {
	Intake(ctx context.Context) (core.IntakeReport, error)
	ApplyAmendments(ctx context.Context) (core.AmendmentReport, error)
	SyncPublication(ctx context.Context) (core.SyncReport, error)
	Publish(ctx context.Context) (core.PublishReport, error)
	Run(ctx context.Context) (core.RunReport, error)
}

// Server wires HTTP routes to a pipeline. Stage runs are serialised: a
// trigger that arrives while another run is in flight waits for it.
type Server struct {
	pipeline Pipeline
	metrics  http.Handler
	token    string
	logger   *slog.Logger
	tp       trace.TracerProvider

	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithToken requires "Authorization: Bearer <token>" on stage triggers.
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithTracerProvider traces every request through tp.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(s *Server) { s.tp = tp } }

// New constructs a Server.
func New(p Pipeline, opts ...Option) *Server {
	s := &Server{pipeline: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the echo instance serving all routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if s.tp != nil {
		e.Use(otelecho.Middleware("profileflow", otelecho.WithTracerProvider(s.tp)))
	}
	s.RegisterRoutes(e)
	return e
}

// RegisterRoutes mounts the server's routes on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	e.POST("/runs/:stage", s.handleRun, s.requireToken)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	e := s.Handler()
	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token == "" {
			return next(c)
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return next(c)
	}
}

func (s *Server) handleRun(c echo.Context) error {
	stage := c.Param("stage")
	run, ok := s.stage(stage)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown stage " + stage})
	}

	runID := uuid.NewString()
	ctx := c.Request().Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	report, err := run(ctx)
	logger := s.logger.With("run_id", runID, "stage", stage, "duration", time.Since(started))
	if err != nil {
		logger.Error("stage run failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"run_id": runID,
			"stage":  stage,
			"error":  err.Error(),
			"report": report,
		})
	}
	logger.Info("stage run complete")
	return c.JSON(http.StatusOK, echo.Map{
		"run_id": runID,
		"stage":  stage,
		"report": report,
	})
}

func (s *Server) stage(name string) (func(context.Context) (any, error), bool) {
	switch name {
	case "intake":
		return func(ctx context.Context) (any, error) { return s.pipeline.Intake(ctx) }, true
	case "amend":
		return func(ctx context.Context) (any, error) { return s.pipeline.ApplyAmendments(ctx) }, true
	case "sync":
		return func(ctx context.Context) (any, error) { return s.pipeline.SyncPublication(ctx) }, true
	case "publish":
		return func(ctx context.Context) (any, error) { return s.pipeline.Publish(ctx) }, true
	case "run":
		return func(ctx context.Context) (any, error) { return s.pipeline.Run(ctx) }, true
	}
	return nil, false
}
