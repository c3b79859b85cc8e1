package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"sync"
	"testing"
	"time"
)

var (
	rawHeader = []string{"Timestamp", "Full Name", "Gender", "Email Address", "Phone", "Representative's Number", "Tell us about yourself"}
	amdHeader = []string{"Timestamp", "Profile ID", "Profile Key", "Amendment Style", "Full Name", "Email Address", "Gender", "Phone", "About you"}
	prcHeader = []string{"Timestamp", "Amended Timestamp", "Profile ID", "Profile Key", "Full Name", "Gender", "Email", "Phone Number", "Representative's Number", "About"}
)

func testSchema() domain.Schema {
	f := func(k, c string) domain.Field { return domain.Field{Key: k, Column: c} }
	return domain.Schema{
		Raw: domain.NewMapping(
			f(domain.KeyTimestamp, "Timestamp"),
			f(domain.KeyFullName, "Full Name"),
			f(domain.KeyGender, "Gender"),
			f(domain.KeyEmail, "Email Address"),
			f(domain.KeyPhoneNumber, "Phone"),
			f(domain.KeyRepresentative, "Representative's Number"),
			f("About", "Tell us about yourself"),
		),
		Amendment: domain.NewMapping(
			f("Ammended Timestamp", "Timestamp"),
			f(domain.KeyProfileID, "Profile ID"),
			f(domain.KeyProfileKey, "Profile Key"),
			f(domain.KeyAmendmentStyle, "Amendment Style"),
			f(domain.KeyFullName, "Full Name"),
			f(domain.KeyEmail, "Email Address"),
			f(domain.KeyGender, "Gender"),
			f(domain.KeyPhoneNumber, "Phone"),
			f("About", "About you"),
		),
		Processed: domain.NewMapping(
			f(domain.KeyTimestamp, "Timestamp"),
			f("Ammended Timestamp", "Amended Timestamp"),
			f(domain.KeyProfileID, "Profile ID"),
			f(domain.KeyProfileKey, "Profile Key"),
			f(domain.KeyFullName, "Full Name"),
			f(domain.KeyGender, "Gender"),
			f(domain.KeyEmail, "Email"),
			f(domain.KeyPhoneNumber, "Phone Number"),
			f(domain.KeyRepresentative, "Representative's Number"),
			f("About", "About"),
		),
	}
}

type fakeRenderer struct {
	mu      sync.Mutex
	calls   []domain.Record
	failFor map[string]bool
}

func (r *fakeRenderer) Render(_ context.Context, rec domain.Record, id string) (domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rec.Clone())
	if r.failFor[id] {
		return domain.Artifact{}, errors.New("render boom")
	}
	return domain.Artifact{Key: "profiles/" + id + ".pdf", Name: "profile_" + id + ".pdf", ContentType: "application/pdf"}, nil
}

type sent struct {
	kind string
	n    domain.Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *fakeNotifier) record(kind string, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{kind: kind, n: msg})
	return n.err
}

func (n *fakeNotifier) NotifyNew(_ context.Context, msg domain.Notification) error {
	return n.record("new", msg)
}

func (n *fakeNotifier) NotifyAmended(_ context.Context, msg domain.Notification) error {
	return n.record("amended", msg)
}

func (n *fakeNotifier) NotifyError(_ context.Context, msg domain.Notification) error {
	return n.record("error", msg)
}

func (n *fakeNotifier) count(kind string) int {
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

type fakePublisher struct {
	captions  []string
	artifacts []domain.Artifact
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, a domain.Artifact, caption string) error {
	p.captions = append(p.captions, caption)
	p.artifacts = append(p.artifacts, a)
	return p.err
}

// flakyStore fails UpdateCell for one column.
type flakyStore struct {
	tabular.Store
	failColumn string
}

func (f flakyStore) UpdateCell(ctx context.Context, ref tabular.RowRef, column, value string) error {
	if column == f.failColumn {
		return fmt.Errorf("update %s: store unavailable", column)
	}
	return f.Store.UpdateCell(ctx, ref, column, value)
}

type harness struct {
	stores    Stores
	renderer  *fakeRenderer
	notifier  *fakeNotifier
	publisher *fakePublisher
	svc       *Service
}

func newHarness(t *testing.T, raw, amendments, processed [][]string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		stores: Stores{
			Raw:               tabular.NewMemory("raw", rawHeader, raw...),
			Amendment:         tabular.NewMemory("amendments", amdHeader, amendments...),
			Processed:         tabular.NewMemory("processed", headerIf(processed, prcHeader), processed...),
			PublicationFemale: tabular.NewMemory("publication_female", nil),
			PublicationMale:   tabular.NewMemory("publication_male", nil),
		},
		renderer:  &fakeRenderer{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
	}
	base := []Option{
		WithRenderer(h.renderer),
		WithNotifier(h.notifier),
		WithPublisher(h.publisher),
		WithGenerator(NewGenerator(rand.NewPCG(1, 2))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	svc, err := NewService(testSchema(), h.stores, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

// headerIf returns header when rows is non-nil so an empty processed store
// can be modelled with a nil row set.
func headerIf(rows [][]string, header []string) []string {
	if rows == nil {
		return nil
	}
	return header
}

func readTable(t *testing.T, s tabular.Store) tabular.Table {
	t.Helper()
	tbl, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read %s: %v", s.Name(), err)
	}
	return tbl
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}
