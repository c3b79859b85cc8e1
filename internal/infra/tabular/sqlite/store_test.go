package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"profileflow/internal/tabular/core"
	"testing"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "tables.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	tbl := db.Table("processed")
	if tbl.Driver() != core.DriverSQLite || tbl.Name() != "processed" {
		t.Fatalf("unexpected identity")
	}
	h, err := tbl.Header(ctx)
	if err != nil || h != nil {
		t.Fatalf("expected no header: %v %v", h, err)
	}
	if err := tbl.AppendRows(ctx, nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if err := tbl.WriteHeader(ctx, []string{"Timestamp", "Profile ID", "Profile Key"}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := tbl.WriteHeader(ctx, []string{"x"}); !errors.Is(err, core.ErrHeaderExists) {
		t.Fatalf("expected ErrHeaderExists, got %v", err)
	}
	if err := tbl.AppendRows(ctx, [][]string{{"01/02/2024 10:00:00", "F0001", "00042"}, {"02/02/2024", "M0002"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	all, err := tbl.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all.Rows) != 2 || all.Rows[0].Ref != core.FirstDataRow {
		t.Fatalf("unexpected rows %+v", all.Rows)
	}
	if got := all.Record(1).Value("Profile Key"); got != "" {
		t.Fatalf("short row should pad, got %q", got)
	}
	if got := all.Record(0).Value("Profile Key"); got != "00042" {
		t.Fatalf("leading zeros lost: %q", got)
	}
	if err := tbl.UpdateCell(ctx, all.Rows[1].Ref, "Profile Key", "00007"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tbl.UpdateCell(ctx, all.Rows[1].Ref, "nope", "x"); !errors.Is(err, core.ErrUnknownColumn) {
		t.Fatalf("expected unknown column, got %v", err)
	}
	if err := tbl.UpdateCell(ctx, 1, "Profile Key", "x"); !errors.Is(err, core.ErrRowNotFound) {
		t.Fatalf("header must not be updatable, got %v", err)
	}
	if err := tbl.UpdateCell(ctx, 99, "Profile Key", "x"); !errors.Is(err, core.ErrRowNotFound) {
		t.Fatalf("expected row not found, got %v", err)
	}
	if err := tbl.EnsureColumn(ctx, "Amendment Status"); err != nil {
		t.Fatalf("ensure column: %v", err)
	}
	all, _ = tbl.ReadAll(ctx)
	if len(all.Header) != 4 || all.Record(1).Value("Profile Key") != "00007" {
		t.Fatalf("unexpected state %+v", all)
	}
}

func TestTablesAreIsolatedAndPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tables.db")
	db, err := Open(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := db.Table("a").AppendRows(ctx, [][]string{{"1"}}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	_ = db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	a, _ := db.Table("a").ReadAll(ctx)
	b, _ := db.Table("b").ReadAll(ctx)
	if len(a.Rows) != 1 || len(b.Rows) != 0 {
		t.Fatalf("unexpected isolation a=%d b=%d", len(a.Rows), len(b.Rows))
	}
	if db.Path() != path {
		t.Fatalf("path mismatch")
	}
}
