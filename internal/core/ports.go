package core

import (
	"context"
	"profileflow/pkg/domain"
	"time"
)

// Renderer turns a record into a document artifact.
type Renderer interface {
	Render(ctx context.Context, record domain.Record, id string) (domain.Artifact, error)
}

// Notifier delivers lifecycle messages to a profile's contact address.
type Notifier interface {
	NotifyNew(ctx context.Context, n domain.Notification) error
	NotifyAmended(ctx context.Context, n domain.Notification) error
	NotifyError(ctx context.Context, n domain.Notification) error
}

// Publisher posts a rendered profile to the messaging channel.
type Publisher interface {
	Publish(ctx context.Context, artifact domain.Artifact, caption string) error
}

// MetricsRecorder receives stage timings and per-record outcome counts.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	Count(ctx context.Context, operation, outcome string, n int)
}

// Tracer starts a span around a stage.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended once with the stage's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Count(context.Context, string, string, int)           {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
