// Package memory implements an in-memory tabular Store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"profileflow/internal/tabular/core"
	"slices"
	"sync"
)

// Store implements core.Store backed by process memory.
type Store struct {
	mu     sync.RWMutex
	name   string
	header []string
	rows   [][]string
}

// New returns an empty table.
func New(name string) *Store { return &Store{name: name} }

// NewWithRows returns a table seeded with a header and rows.
func NewWithRows(name string, header []string, rows ...[]string) *Store {
	s := &Store{name: name, header: slices.Clone(header)}
	for _, r := range rows {
		s.rows = append(s.rows, slices.Clone(r))
	}
	return s
}

// Name returns the table name.
func (s *Store) Name() string { return s.name }

// Driver returns the tabular driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Header returns a copy of the header row.
func (s *Store) Header(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.header), nil
}

// ReadAll returns the header and every row padded to the header width.
func (s *Store) ReadAll(context.Context) (core.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := core.Table{Name: s.name, Header: slices.Clone(s.header)}
	for i, r := range s.rows {
		cells := make([]string, max(len(s.header), len(r)))
		copy(cells, r)
		t.Rows = append(t.Rows, core.Row{Ref: core.FirstDataRow + core.RowRef(i), Cells: cells})
	}
	return t, nil
}

// WriteHeader sets the header when the table has none.
func (s *Store) WriteHeader(_ context.Context, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.header) > 0 {
		return fmt.Errorf("%s: %w", s.name, core.ErrHeaderExists)
	}
	s.header = slices.Clone(header)
	return nil
}

// AppendRows adds rows after the last data row.
func (s *Store) AppendRows(_ context.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows = append(s.rows, slices.Clone(r))
	}
	return nil
}

// UpdateCell overwrites one cell addressed by row handle and column name.
func (s *Store) UpdateCell(_ context.Context, ref core.RowRef, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := core.ColumnIndex(s.header, column)
	if col < 0 {
		return fmt.Errorf("%s: %w %q", s.name, core.ErrUnknownColumn, column)
	}
	idx := int(ref - core.FirstDataRow)
	if idx < 0 || idx >= len(s.rows) {
		return fmt.Errorf("%s: %w: %d", s.name, core.ErrRowNotFound, ref)
	}
	for len(s.rows[idx]) <= col {
		s.rows[idx] = append(s.rows[idx], "")
	}
	s.rows[idx][col] = value
	return nil
}

// EnsureColumn appends column to the header when missing.
func (s *Store) EnsureColumn(_ context.Context, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if core.ColumnIndex(s.header, column) >= 0 {
		return nil
	}
	s.header = append(s.header, column)
	return nil
}
