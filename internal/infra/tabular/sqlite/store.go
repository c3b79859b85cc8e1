// Package sqlite provides SQLite-backed tabular stores. All tables share one
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"profileflow/internal/infra/tabular/sqlrows"
	"profileflow/internal/tabular/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Dialect is the SQLite flavour of the shared row table.
var Dialect = sqlrows.Dialect{Driver: core.DriverSQLite, PayloadType: "TEXT"}

// DB owns the database handle shared by every table.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates the database file and backing table when needed.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = "profileflow.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := sqlrows.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, path: path}, nil
}

// Table returns the store for name.
func (d *DB) Table(name string) *sqlrows.Table { return sqlrows.New(d.db, Dialect, name) }

// SQL exposes the underlying sql.DB for integration testing hooks.
func (d *DB) SQL() *sql.DB { return d.db }

// Path returns the configured database path.
func (d *DB) Path() string { return d.path }

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }
