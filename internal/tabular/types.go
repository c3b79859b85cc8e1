// Package tabular re-exports core tabular abstractions and wires the
// infra-backed drivers behind them.
package tabular

import (
	"profileflow/internal/tabular/core"
)

type (
	// Driver identifies a tabular backend driver.
	Driver = core.Driver
	// RowRef is an opaque row handle.
	RowRef = core.RowRef
	// Row is a data row with its handle.
	Row = core.Row
	// Table is a full read of one store.
	Table = core.Table
	// Store is the interface for tabular backends.
	Store = core.Store
)

const (
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
	// DriverSQLite is the SQLite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the Postgres driver.
	DriverPostgres = core.DriverPostgres
	// DriverSheets is the Google Sheets driver.
	DriverSheets = core.DriverSheets
	// FirstDataRow is the handle of the first row after the header.
	FirstDataRow = core.FirstDataRow
)

var (
	// ErrUnknownColumn indicates a column missing from the header.
	ErrUnknownColumn = core.ErrUnknownColumn
	// ErrRowNotFound indicates a handle that addresses no data row.
	ErrRowNotFound = core.ErrRowNotFound
	// ErrHeaderExists indicates WriteHeader on a table with a header.
	ErrHeaderExists = core.ErrHeaderExists
)

// ColumnIndex returns the zero-based index of name in header or -1.
func ColumnIndex(header []string, name string) int { return core.ColumnIndex(header, name) }
