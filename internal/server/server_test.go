package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"profileflow/internal/core"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakePipeline struct {
	mu     sync.Mutex
	calls  []string
	err    error
	active int32
	peak   int32
	delay  time.Duration
}

func (f *fakePipeline) enter(stage string) {
	n := atomic.AddInt32(&f.active, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, stage)
	f.mu.Unlock()
	time.Sleep(f.delay)
	atomic.AddInt32(&f.active, -1)
}

func (f *fakePipeline) Intake(context.Context) (core.IntakeReport, error) {
	f.enter("intake")
	return core.IntakeReport{New: 2}, f.err
}

func (f *fakePipeline) ApplyAmendments(context.Context) (core.AmendmentReport, error) {
	f.enter("amend")
	return core.AmendmentReport{Complete: 1}, f.err
}

func (f *fakePipeline) SyncPublication(context.Context) (core.SyncReport, error) {
	f.enter("sync")
	return core.SyncReport{Inserted: 3}, f.err
}

func (f *fakePipeline) Publish(context.Context) (core.PublishReport, error) {
	f.enter("publish")
	return core.PublishReport{Posted: 1}, f.err
}

func (f *fakePipeline) Run(context.Context) (core.RunReport, error) {
	f.enter("run")
	return core.RunReport{}, f.err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakePipeline{}, WithLogger(quietLogger()))
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRunStageReturnsReport(t *testing.T) {
	p := &fakePipeline{}
	s := New(p, WithLogger(quietLogger()))
	rec := do(t, s.Handler(), http.MethodPost, "/runs/intake", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		RunID  string `json:"run_id"`
		Stage  string `json:"stage"`
		Report struct {
			New int
		} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stage != "intake" || body.Report.New != 2 || body.RunID == "" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(p.calls) != 1 || p.calls[0] != "intake" {
		t.Fatalf("unexpected calls %v", p.calls)
	}
}

func TestEveryStageIsRoutable(t *testing.T) {
	p := &fakePipeline{}
	h := New(p, WithLogger(quietLogger())).Handler()
	for _, stage := range []string{"intake", "amend", "sync", "publish", "run"} {
		if rec := do(t, h, http.MethodPost, "/runs/"+stage, ""); rec.Code != http.StatusOK {
			t.Fatalf("stage %s: expected 200, got %d", stage, rec.Code)
		}
	}
	if len(p.calls) != 5 {
		t.Fatalf("expected 5 calls, got %v", p.calls)
	}
}

func TestUnknownStage(t *testing.T) {
	p := &fakePipeline{}
	rec := do(t, New(p, WithLogger(quietLogger())).Handler(), http.MethodPost, "/runs/match", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(p.calls) != 0 {
		t.Fatalf("pipeline should not run, got %v", p.calls)
	}
}

func TestStageFailureIs500(t *testing.T) {
	p := &fakePipeline{err: errors.New("store unreadable")}
	rec := do(t, New(p, WithLogger(quietLogger())).Handler(), http.MethodPost, "/runs/sync", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "store unreadable" {
		t.Fatalf("unexpected error field %v", body["error"])
	}
}

func TestTokenRequired(t *testing.T) {
	p := &fakePipeline{}
	h := New(p, WithToken("s3cret"), WithLogger(quietLogger())).Handler()

	if rec := do(t, h, http.MethodPost, "/runs/publish", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/runs/publish", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/runs/publish", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", rec.Code)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected exactly one authorised run, got %v", p.calls)
	}
}

func TestMetricsHandlerMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "profileflow_stage_runs_total 1\n")
	})
	h := New(&fakePipeline{}, WithMetricsHandler(metrics), WithLogger(quietLogger())).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "profileflow_stage_runs_total 1\n" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}

	bare := New(&fakePipeline{}, WithLogger(quietLogger())).Handler()
	if rec := do(t, bare, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}
}

func TestRunsAreSerialised(t *testing.T) {
	p := &fakePipeline{delay: 20 * time.Millisecond}
	h := New(p, WithLogger(quietLogger())).Handler()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/runs/run", nil)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&p.peak); peak != 1 {
		t.Fatalf("expected serialised runs, peak concurrency %d", peak)
	}
	if len(p.calls) != 4 {
		t.Fatalf("expected 4 runs, got %v", p.calls)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(&fakePipeline{}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestsAreTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := New(&fakePipeline{}, WithTracerProvider(tp), WithLogger(quietLogger())).Handler()

	if rec := do(t, h, http.MethodPost, "/runs/sync", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one request span, got %d", len(spans))
	}
	if name := spans[0].Name(); !strings.Contains(name, "/runs/:stage") {
		t.Fatalf("unexpected span name %q", name)
	}
}
