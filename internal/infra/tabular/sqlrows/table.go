// Package sqlrows stores tabular data in a single SQL table, one JSON array
// payload per row. Row 1 holds the header; data rows follow in order.
// The sqlite and postgres drivers share this implementation and differ only
// in their Dialect.
package sqlrows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"profileflow/internal/tabular/core"
	"strconv"
	"strings"
	"sync"
)

const headerRow = 1

// Dialect captures the SQL differences between drivers.
type Dialect struct {
	Driver      core.Driver
	PayloadType string // column type used for the JSON payload
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
}

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnsureSchema creates the backing table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tabular_rows (
		table_name TEXT NOT NULL,
		row_num INTEGER NOT NULL,
		payload %s NOT NULL,
		PRIMARY KEY (table_name, row_num)
	)`, d.PayloadType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure tabular_rows: %w", err)
	}
	return nil
}

// Table implements core.Store over the shared tabular_rows table.
type Table struct {
	db      *sql.DB
	dialect Dialect
	name    string
	mu      sync.Mutex
}

// New returns a store for the named table.
func New(db *sql.DB, d Dialect, name string) *Table {
	return &Table{db: db, dialect: d, name: name}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Driver returns the dialect's driver identifier.
func (t *Table) Driver() core.Driver { return t.dialect.Driver }

// Header returns the header row or nil when none has been written.
func (t *Table) Header(ctx context.Context) ([]string, error) {
	cells, err := t.row(ctx, t.db, headerRow)
	if errors.Is(err, core.ErrRowNotFound) {
		return nil, nil
	}
	return cells, err
}

// ReadAll returns the header and all data rows ordered by row number.
func (t *Table) ReadAll(ctx context.Context) (core.Table, error) {
	rows, err := t.db.QueryContext(ctx, t.dialect.Rebind(
		`SELECT row_num, payload FROM tabular_rows WHERE table_name = ? ORDER BY row_num`), t.name)
	if err != nil {
		return core.Table{}, fmt.Errorf("select %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()
	out := core.Table{Name: t.name}
	for rows.Next() {
		var num int
		var payload []byte
		if err := rows.Scan(&num, &payload); err != nil {
			return core.Table{}, fmt.Errorf("scan %s: %w", t.name, err)
		}
		var cells []string
		if err := json.Unmarshal(payload, &cells); err != nil {
			return core.Table{}, fmt.Errorf("decode %s row %d: %w", t.name, num, err)
		}
		if num == headerRow {
			out.Header = cells
			continue
		}
		out.Rows = append(out.Rows, core.Row{Ref: core.RowRef(num), Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return core.Table{}, err
	}
	for i := range out.Rows {
		for len(out.Rows[i].Cells) < len(out.Header) {
			out.Rows[i].Cells = append(out.Rows[i].Cells, "")
		}
	}
	return out, nil
}

// WriteHeader inserts the header row when the table has none.
func (t *Table) WriteHeader(ctx context.Context, header []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, err := t.Header(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%s: %w", t.name, core.ErrHeaderExists)
	}
	return t.upsert(ctx, t.db, headerRow, header)
}

// AppendRows writes rows after the current last row in one transaction.
func (t *Table) AppendRows(ctx context.Context, rows [][]string) (retErr error) {
	if len(rows) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append %s: %w", t.name, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, t.dialect.Rebind(
		`SELECT MAX(row_num) FROM tabular_rows WHERE table_name = ?`), t.name).Scan(&last); err != nil {
		return fmt.Errorf("max row %s: %w", t.name, err)
	}
	next := int(core.FirstDataRow)
	if last.Valid && int(last.Int64) >= next {
		next = int(last.Int64) + 1
	}
	for i, r := range rows {
		if err := t.upsert(ctx, tx, next+i, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateCell rewrites a single cell of a data row.
func (t *Table) UpdateCell(ctx context.Context, ref core.RowRef, column, value string) error {
	if ref < core.FirstDataRow {
		return fmt.Errorf("%s: %w: %d", t.name, core.ErrRowNotFound, ref)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	header, err := t.Header(ctx)
	if err != nil {
		return err
	}
	col := core.ColumnIndex(header, column)
	if col < 0 {
		return fmt.Errorf("%s: %w %q", t.name, core.ErrUnknownColumn, column)
	}
	cells, err := t.row(ctx, t.db, int(ref))
	if err != nil {
		return err
	}
	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = value
	return t.upsert(ctx, t.db, int(ref), cells)
}

// EnsureColumn appends column to the header when missing.
func (t *Table) EnsureColumn(ctx context.Context, column string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	header, err := t.Header(ctx)
	if err != nil {
		return err
	}
	if core.ColumnIndex(header, column) >= 0 {
		return nil
	}
	return t.upsert(ctx, t.db, headerRow, append(header, column))
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (t *Table) row(ctx context.Context, q queryer, num int) ([]string, error) {
	var payload []byte
	err := q.QueryRowContext(ctx, t.dialect.Rebind(
		`SELECT payload FROM tabular_rows WHERE table_name = ? AND row_num = ?`), t.name, num).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w: %d", t.name, core.ErrRowNotFound, num)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s row %d: %w", t.name, num, err)
	}
	var cells []string
	if err := json.Unmarshal(payload, &cells); err != nil {
		return nil, fmt.Errorf("decode %s row %d: %w", t.name, num, err)
	}
	return cells, nil
}

func (t *Table) upsert(ctx context.Context, q queryer, num int, cells []string) error {
	if cells == nil {
		cells = []string{}
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, t.dialect.Rebind(
		`INSERT INTO tabular_rows(table_name,row_num,payload) VALUES(?,?,?)
		ON CONFLICT(table_name,row_num) DO UPDATE SET payload=excluded.payload`), t.name, num, string(data)); err != nil {
		return fmt.Errorf("upsert %s row %d: %w", t.name, num, err)
	}
	return nil
}
