package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"profileflow/internal/blob"
	"profileflow/internal/channel"
	"profileflow/internal/config"
	"profileflow/internal/core"
	"profileflow/internal/notify"
	"profileflow/internal/observability"
	"profileflow/internal/render"
	"profileflow/internal/tabular"

	"go.opentelemetry.io/otel/trace"
)

// app holds the wired service and everything that must be flushed or closed
// when a command ends.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	service  *core.Service
	metrics  *observability.Metrics
	tp       trace.TracerProvider
	closers  []func(context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pushMetrics sends the run's metrics to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context) {
	if a.settings.Metrics.PushURL == "" {
		return
	}
	if err := a.metrics.Push(ctx, a.settings.Metrics.PushURL, a.settings.Metrics.Job); err != nil {
		a.logger.Warn("metrics push failed", "error", err)
	}
}

// wire builds the service from settings. stderr receives JSON trace spans
// when tracing.exporter is json.
func wire(ctx context.Context, s config.Settings, logger *slog.Logger, stderr io.Writer, withRuntime bool) (*app, error) {
	a := &app{settings: s, logger: logger, metrics: observability.NewMetrics(withRuntime)}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(ctx)
		}
	}()

	schema, err := config.LoadSchema(s.Schema.File)
	if err != nil {
		return nil, err
	}

	catalog, err := tabular.Open(ctx, tabular.Options{
		Driver:                tabular.Driver(s.Store.Driver),
		SQLitePath:            s.Store.SQLitePath,
		PostgresDSN:           s.Store.PostgresDSN,
		SheetsCredentialsFile: s.Store.SheetsCredentials,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.Store.Driver, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return catalog.Close() })

	stores, err := openStores(catalog, s.Tables)
	if err != nil {
		return nil, err
	}

	artifacts, err := blob.Open(ctx, blob.Options{
		Driver: blob.Driver(s.Blob.Driver),
		FSRoot: s.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          s.Blob.S3.Bucket,
			Region:          s.Blob.S3.Region,
			Endpoint:        s.Blob.S3.Endpoint,
			AccessKeyID:     s.Blob.S3.AccessKeyID,
			SecretAccessKey: s.Blob.S3.SecretAccessKey,
			PathStyle:       s.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", s.Blob.Driver, err)
	}
	renderer := render.New(artifacts,
		render.WithLocalDir(s.Render.LocalDir),
		render.WithRetention(s.Render.Retention),
		render.WithLogger(logger),
	)

	notifier, publisher, err := outbound(s, logger)
	if err != nil {
		return nil, err
	}

	opts := []core.Option{
		core.WithRenderer(renderer),
		core.WithNotifier(notifier),
		core.WithPublisher(publisher),
		core.WithLogger(logger),
		core.WithMetricsRecorder(a.metrics),
	}
	tracer, err := a.tracer(ctx, stderr)
	if err != nil {
		return nil, err
	}
	if tracer != nil {
		opts = append(opts, core.WithTracer(tracer))
	}

	a.service, err = core.NewService(schema, stores, opts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func openStores(c *tabular.Catalog, t config.TableSettings) (core.Stores, error) {
	var stores core.Stores
	for _, slot := range []struct {
		name string
		dst  *tabular.Store
	}{
		{t.Raw, &stores.Raw},
		{t.Amendment, &stores.Amendment},
		{t.Processed, &stores.Processed},
		{t.PublicationFemale, &stores.PublicationFemale},
		{t.PublicationMale, &stores.PublicationMale},
	} {
		st, err := c.Table(slot.name)
		if err != nil {
			return core.Stores{}, fmt.Errorf("open table %q: %w", slot.name, err)
		}
		*slot.dst = st
	}
	return stores, nil
}

// outbound picks the delivery collaborators. Dry runs log instead of
// emailing or posting.
func outbound(s config.Settings, logger *slog.Logger) (core.Notifier, core.Publisher, error) {
	if s.DryRun {
		logger.Info("dry run: notifications and channel posts are logged only")
		return notify.LogNotifier{Logger: logger}, channel.LogPublisher{Logger: logger}, nil
	}
	notifier, err := notify.NewSMTP(notify.Config{
		Host:     s.SMTP.Host,
		Port:     s.SMTP.Port,
		Username: s.SMTP.Username,
		Password: s.SMTP.Password,
		From:     s.SMTP.From,
		FromName: s.SMTP.FromName,
	})
	if err != nil {
		return nil, nil, err
	}
	publisher, err := channel.NewTelegram(channel.Config{
		Token:  s.Telegram.Token,
		ChatID: s.Telegram.ChatID,
	})
	if err != nil {
		return nil, nil, err
	}
	return notifier, publisher, nil
}

func (a *app) tracer(ctx context.Context, stderr io.Writer) (core.Tracer, error) {
	switch a.settings.Tracing.Exporter {
	case "json":
		return core.NewJSONTracer(stderr), nil
	case "otlp":
		tp, err := observability.NewOTLPProvider(ctx, a.settings.Tracing.Endpoint, "profileflow")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, tp.Shutdown)
		a.tp = tp
		return observability.NewTracer(tp), nil
	}
	return nil, nil
}
