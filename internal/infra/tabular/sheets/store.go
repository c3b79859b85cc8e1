// Package sheets implements tabular stores over the Google Sheets API v4.
// A table is addressed as "spreadsheetID" (first sheet) or
// "spreadsheetID:Tab Name".
package sheets

import (
	"context"
	"fmt"
	"profileflow/internal/tabular/core"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// RAW keeps values verbatim so five digit keys such as "00042" survive.
const valueInput = "RAW"

// Client wraps an authenticated Sheets service shared by every table.
type Client struct {
	svc *sheetsapi.Service
}

// NewClient builds a Sheets client. With credentialsFile empty the caller must
// supply authentication through opts (tests use option.WithoutAuthentication).
func NewClient(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Client, error) {
	if credentialsFile != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(sheetsapi.SpreadsheetsScope),
		}, opts...)
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Table returns the store addressed by name.
func (c *Client) Table(name string) *Store {
	id, tab, _ := strings.Cut(name, ":")
	return &Store{svc: c.svc, name: name, spreadsheetID: id, tab: tab}
}

// Store implements core.Store for one sheet tab.
type Store struct {
	svc           *sheetsapi.Service
	name          string
	spreadsheetID string
	tab           string

	mu     sync.Mutex
	header []string // cached after the first read
}

// Name returns the table address.
func (s *Store) Name() string { return s.name }

// Driver returns the tabular driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSheets }

func (s *Store) a1(ref string) string {
	if s.tab == "" {
		return ref
	}
	return "'" + strings.ReplaceAll(s.tab, "'", "''") + "'!" + ref
}

func (s *Store) get(ctx context.Context, rng string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1(rng)).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets get %s: %w", s.name, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (s *Store) put(ctx context.Context, rng string, rows [][]string) error {
	vr := &sheetsapi.ValueRange{Values: toValues(rows)}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1(rng), vr).
		ValueInputOption(valueInput).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets update %s %s: %w", s.name, rng, err)
	}
	return nil
}

// Header fetches row 1.
func (s *Store) Header(ctx context.Context) ([]string, error) {
	rows, err := s.get(ctx, "1:1")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = nil
	if len(rows) > 0 {
		s.header = rows[0]
	}
	return append([]string(nil), s.header...), nil
}

// ReadAll fetches the whole sheet. Trailing empty cells trimmed by the API
// are restored up to the header width.
func (s *Store) ReadAll(ctx context.Context) (core.Table, error) {
	rows, err := s.get(ctx, "A:ZZZ")
	if err != nil {
		return core.Table{}, err
	}
	t := core.Table{Name: s.name}
	if len(rows) > 0 {
		t.Header = rows[0]
	}
	for i, r := range rows[min(1, len(rows)):] {
		for len(r) < len(t.Header) {
			r = append(r, "")
		}
		t.Rows = append(t.Rows, core.Row{Ref: core.FirstDataRow + core.RowRef(i), Cells: r})
	}
	s.mu.Lock()
	s.header = append([]string(nil), t.Header...)
	s.mu.Unlock()
	return t, nil
}

// WriteHeader writes row 1 of an empty sheet.
func (s *Store) WriteHeader(ctx context.Context, header []string) error {
	existing, err := s.Header(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%s: %w", s.name, core.ErrHeaderExists)
	}
	if err := s.put(ctx, "A1", [][]string{header}); err != nil {
		return err
	}
	s.mu.Lock()
	s.header = append([]string(nil), header...)
	s.mu.Unlock()
	return nil
}

// AppendRows appends below the last populated row.
func (s *Store) AppendRows(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheetsapi.ValueRange{Values: toValues(rows)}
	if _, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), vr).
		ValueInputOption(valueInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets append %s: %w", s.name, err)
	}
	return nil
}

// UpdateCell writes one cell. The header is read once and cached.
func (s *Store) UpdateCell(ctx context.Context, ref core.RowRef, column, value string) error {
	if ref < core.FirstDataRow {
		return fmt.Errorf("%s: %w: %d", s.name, core.ErrRowNotFound, ref)
	}
	header, err := s.cachedHeader(ctx)
	if err != nil {
		return err
	}
	col := core.ColumnIndex(header, column)
	if col < 0 {
		return fmt.Errorf("%s: %w %q", s.name, core.ErrUnknownColumn, column)
	}
	return s.put(ctx, fmt.Sprintf("%s%d", ColumnLetters(col), ref), [][]string{{value}})
}

// EnsureColumn appends a header cell when column is missing.
func (s *Store) EnsureColumn(ctx context.Context, column string) error {
	header, err := s.Header(ctx)
	if err != nil {
		return err
	}
	if core.ColumnIndex(header, column) >= 0 {
		return nil
	}
	if err := s.put(ctx, fmt.Sprintf("%s1", ColumnLetters(len(header))), [][]string{{column}}); err != nil {
		return err
	}
	s.mu.Lock()
	s.header = append(header, column)
	s.mu.Unlock()
	return nil
}

func (s *Store) cachedHeader(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	h := s.header
	s.mu.Unlock()
	if h != nil {
		return h, nil
	}
	return s.Header(ctx)
}

// ColumnLetters converts a zero-based column index to A1 letters (0 -> A, 26 -> AA).
func ColumnLetters(idx int) string {
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		out[i] = row
	}
	return out
}
