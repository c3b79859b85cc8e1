// Package observability exports pipeline metrics to Prometheus and stage
// spans to OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "profileflow"

// Metrics records stage runs and per-record outcomes on a private registry.
// It implements core.MetricsRecorder.
type Metrics struct {
	registry    *prometheus.Registry
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the pipeline collectors. Go runtime and process
// collectors are included when withRuntime is set, which suits the long
// running serve command; cron runs pushing to a gateway leave them out.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by result.",
		}, []string{"stage", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records handled per stage by outcome.",
		}, []string{"stage", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful stage run.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.duration, m.runs, m.records, m.lastSuccess)
	if withRuntime {
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Observe records one stage execution.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	if operation == "" {
		return
	}
	m.duration.WithLabelValues(operation, result(success)).Observe(d.Seconds())
	m.runs.WithLabelValues(operation, result(success)).Inc()
	if success {
		m.lastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

// Count adds n records with outcome to operation.
func (m *Metrics) Count(_ context.Context, operation, outcome string, n int) {
	if operation == "" || n <= 0 {
		return
	}
	m.records.WithLabelValues(operation, outcome).Add(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push replaces the metrics of job on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = namespace
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
