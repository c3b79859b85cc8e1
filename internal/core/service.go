package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"time"
)

// Stores groups the five tables the pipeline reads and writes.
type Stores struct {
	Raw               tabular.Store
	Amendment         tabular.Store
	Processed         tabular.Store
	PublicationFemale tabular.Store
	PublicationMale   tabular.Store
}

// Publication returns the publication store for gender.
func (s Stores) Publication(g domain.Gender) tabular.Store {
	if g == domain.Male {
		return s.PublicationMale
	}
	return s.PublicationFemale
}

// Service runs the intake, amendment and publication stages against a set
// of stores. It is not safe for concurrent runs; callers serialise stages.
type Service struct {
	schema    domain.Schema
	stores    Stores
	ids       *Generator
	renderer  Renderer
	notifier  Notifier
	publisher Publisher
	logger    *slog.Logger
	metrics   MetricsRecorder
	tracer    Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer sets the document renderer.
func WithRenderer(r Renderer) Option { return func(s *Service) { s.renderer = r } }

// WithNotifier sets the email notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithPublisher sets the channel publisher.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithGenerator replaces the identity generator, typically with a seeded one in tests.
func WithGenerator(g *Generator) Option { return func(s *Service) { s.ids = g } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option { return func(s *Service) { s.metrics = m } }

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option { return func(s *Service) { s.tracer = t } }

// ErrMissingCollaborator is returned when a stage needs a collaborator that
// was not configured.
var ErrMissingCollaborator = errors.New("collaborator not configured")

// ErrMissingFlagColumns is returned when a publication store lacks Posted? or Confirm?.
var ErrMissingFlagColumns = errors.New("publication flag columns missing")

// NewService validates the schema and assembles a service.
func NewService(schema domain.Schema, stores Stores, opts ...Option) (*Service, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	s := &Service{
		schema:  schema,
		stores:  stores,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewGenerator(nil)
	}
	return s, nil
}

// Schema returns the schema the service was built with.
func (s *Service) Schema() domain.Schema { return s.schema }

// run wraps a stage with tracing, timing and a summary error log.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	span.End(err)
	if err != nil {
		s.logger.ErrorContext(ctx, "stage failed", "stage", op, "error", err)
	}
	return err
}

func (s *Service) report(ctx context.Context, op string, diags []domain.Diagnostic) {
	for _, d := range diags {
		s.logger.WarnContext(ctx, "diagnostic",
			"stage", op, "kind", string(d.Kind), "table", d.Table, "column", d.Column,
			"row", d.Row, "profile_id", d.ProfileID, "detail", d.Detail)
		s.metrics.Count(ctx, op, "diagnostic_"+string(d.Kind), 1)
	}
}

func (s *Service) read(ctx context.Context, store tabular.Store, role string) (tabular.Table, error) {
	if store == nil {
		return tabular.Table{}, fmt.Errorf("%s store: %w", role, ErrMissingCollaborator)
	}
	t, err := store.ReadAll(ctx)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("read %s: %w", role, err)
	}
	if t.Name == "" {
		t.Name = store.Name()
	}
	return t, nil
}

// documentRecord strips the Profile Key from a record before rendering; the
// key is a secret for amendments and never printed.
func (s *Service) documentRecord(rec domain.Record) domain.Record {
	return rec.Without(s.schema.Processed.MustColumn(domain.KeyProfileKey))
}

// RunReport aggregates one full pipeline run.
type RunReport struct {
	Intake  IntakeReport
	Sync    SyncReport
	Publish PublishReport
}

// Run executes intake, publication sync and publish in order, stopping at
// the first structural failure.
func (s *Service) Run(ctx context.Context) (RunReport, error) {
	var rep RunReport
	var err error
	if rep.Intake, err = s.Intake(ctx); err != nil {
		return rep, err
	}
	if rep.Sync, err = s.SyncPublication(ctx); err != nil {
		return rep, err
	}
	rep.Publish, err = s.Publish(ctx)
	return rep, err
}
