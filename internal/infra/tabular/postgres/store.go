// Package postgres provides Postgres-backed tabular stores using the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"profileflow/internal/infra/tabular/sqlrows"
	"profileflow/internal/tabular/core"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/profileflow?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the Postgres flavour of the shared row table.
var Dialect = sqlrows.Dialect{Driver: core.DriverPostgres, PayloadType: "JSONB", Numbered: true}

// DB owns the connection pool shared by every table.
type DB struct {
	db *sql.DB
}

// Open connects using dsn (falls back to defaultDSN) and ensures the backing table.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlrows.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Table returns the store for name.
func (d *DB) Table(name string) *sqlrows.Table { return sqlrows.New(d.db, Dialect, name) }

// SQL exposes the underlying sql.DB for integration testing hooks.
func (d *DB) SQL() *sql.DB { return d.db }

// Close releases the pool.
func (d *DB) Close() error { return d.db.Close() }
