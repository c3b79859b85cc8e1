// Package core defines the tabular store abstraction the reconciliation
// engine reads and writes through. Rows are addressed by opaque handles
// assigned by the adapter; callers never compute row offsets.
package core

import (
	"context"
	"errors"

	"profileflow/pkg/domain"
)

// Driver identifies a concrete tabular backend.
type Driver string

const (
	// DriverMemory keeps tables in process memory (tests, dry runs).
	DriverMemory Driver = "memory"
	// DriverSQLite stores tables in a local SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores tables in Postgres.
	DriverPostgres Driver = "postgres"
	// DriverSheets reads and writes Google Sheets.
	DriverSheets Driver = "sheets"
)

// RowRef is an adapter-owned handle for one data row. The zero value refers
// to no row.
type RowRef int

// Row is one data row together with its handle.
type Row struct {
	Ref   RowRef
	Cells []string
}

// Table is a full read of a store: the header plus every data row in order.
type Table struct {
	Name   string
	Header []string
	Rows   []Row
}

// Empty reports whether the table has no header and no rows.
func (t Table) Empty() bool { return len(t.Header) == 0 && len(t.Rows) == 0 }

// Record returns row i as a domain record keyed by header names.
func (t Table) Record(i int) domain.Record {
	return domain.NewRecord(t.Header, t.Rows[i].Cells)
}

// Records returns all rows as records.
func (t Table) Records() []domain.Record {
	out := make([]domain.Record, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Record(i)
	}
	return out
}

// HasColumn reports whether the header contains name.
func (t Table) HasColumn(name string) bool {
	return ColumnIndex(t.Header, name) >= 0
}

// ColumnIndex returns the zero-based index of name in header or -1.
func ColumnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// Store is a named table with read-all, append and update-cell operations.
// Every write is committed immediately; there are no transactions across calls.
type Store interface {
	Name() string
	Driver() Driver
	Header(ctx context.Context) ([]string, error)
	ReadAll(ctx context.Context) (Table, error)
	// WriteHeader sets the header of a table that has none yet.
	WriteHeader(ctx context.Context, header []string) error
	AppendRows(ctx context.Context, rows [][]string) error
	UpdateCell(ctx context.Context, ref RowRef, column, value string) error
	// EnsureColumn appends column to the header when it is missing.
	EnsureColumn(ctx context.Context, column string) error
}

var (
	// ErrUnknownColumn is returned when a column name is not in the header.
	ErrUnknownColumn = errors.New("tabular: unknown column")
	// ErrRowNotFound is returned for a handle that does not address a data row.
	ErrRowNotFound = errors.New("tabular: row not found")
	// ErrHeaderExists is returned by WriteHeader on a table that already has one.
	ErrHeaderExists = errors.New("tabular: header already written")
)

// FirstDataRow is the handle of the first row after the header.
const FirstDataRow RowRef = 2
