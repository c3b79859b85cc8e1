package tabular

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenMemorySharesTables(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = c.Close() }()
	if c.Driver() != DriverMemory {
		t.Fatalf("expected memory default, got %s", c.Driver())
	}
	a, _ := c.Table("raw")
	if err := a.WriteHeader(ctx, []string{"Timestamp"}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	b, _ := c.Table("raw")
	h, _ := b.Header(ctx)
	if len(h) != 1 {
		t.Fatalf("memory tables should be shared by name")
	}
	if _, err := c.Table(""); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, Options{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "t.db")})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = c.Close() }()
	s, err := c.Table("processed")
	if err != nil || s.Driver() != DriverSQLite {
		t.Fatalf("unexpected table %v %v", s, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "csv"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestNewMemorySeeded(t *testing.T) {
	s := NewMemory("raw", []string{"A"}, []string{"1"}, []string{"2"})
	tbl, err := s.ReadAll(context.Background())
	if err != nil || len(tbl.Rows) != 2 {
		t.Fatalf("unexpected seeded table %v %+v", err, tbl)
	}
	if tbl.Rows[0].Ref != FirstDataRow || tbl.Rows[1].Ref != FirstDataRow+1 {
		t.Fatalf("rows should be addressed from FirstDataRow, got %d and %d", tbl.Rows[0].Ref, tbl.Rows[1].Ref)
	}
	if err := s.UpdateCell(context.Background(), FirstDataRow, "A", "x"); err != nil {
		t.Fatalf("update first data row: %v", err)
	}
	if tbl, _ = s.ReadAll(context.Background()); tbl.Rows[0].Cells[0] != "x" {
		t.Fatalf("expected first data row updated, got %+v", tbl.Rows[0])
	}
}
