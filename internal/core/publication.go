package core

import (
	"context"
	"errors"
	"fmt"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"strings"
)

// publicationKeys are the processed fields mirrored into publication stores,
// in column order after Confirm? and Posted?.
var publicationKeys = []string{
	domain.KeyTimestamp,
	domain.KeyAmendedTimestamp,
	domain.KeyProfileID,
	domain.KeyProfileKey,
	domain.KeyFullName,
	domain.KeyGender,
	domain.KeyEmail,
	domain.KeyPhoneNumber,
	domain.KeyRepresentative,
}

// PublicationHeader is the header written to an empty publication store.
// Keys without a processed mapping are left out.
func PublicationHeader(schema domain.Schema) []string {
	header := []string{domain.ColumnConfirm, domain.ColumnPosted}
	for _, k := range publicationKeys {
		if col, ok := schema.Processed.Column(k); ok {
			header = append(header, col)
		}
	}
	return header
}

// SyncReport summarises one publication sync.
type SyncReport struct {
	Inserted    int
	Refreshed   int
	Unchanged   int
	Skipped     int
	Diagnostics []domain.Diagnostic
}

type publicationView struct {
	store  tabular.Store
	table  tabular.Table
	byID   map[string]int // profile id -> row index
	header []string
	insert [][]string
}

// SyncPublication mirrors processed records into the gender-partitioned
// publication stores. Missing records are inserted with both flags "No".
// Existing rows are refreshed, and both flags reset, only when the processed
// record's latest timestamp is strictly newer than the publication row's.
func (s *Service) SyncPublication(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	err := s.run(ctx, "sync", func(ctx context.Context) error {
		var err error
		rep, err = s.syncPublication(ctx)
		return err
	})
	return rep, err
}

func (s *Service) syncPublication(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	processed, err := s.read(ctx, s.stores.Processed, "processed")
	if err != nil {
		return rep, err
	}
	views := map[domain.Gender]*publicationView{}
	for _, g := range []domain.Gender{domain.Female, domain.Male} {
		v, err := s.openPublication(ctx, g)
		if err != nil {
			return rep, err
		}
		views[g] = v
	}

	pcol := s.schema.Processed.MustColumn
	idCol, tsCol, amCol, genderCol := pcol(domain.KeyProfileID), pcol(domain.KeyTimestamp), pcol(domain.KeyAmendedTimestamp), pcol(domain.KeyGender)
	for i, row := range processed.Rows {
		rec := processed.Record(i)
		id := strings.TrimSpace(rec.Value(idCol))
		gender, gerr := domain.ParseGender(rec.Value(genderCol))
		if id == "" || gerr != nil {
			rep.Skipped++
			detail := "missing profile id"
			if gerr != nil {
				detail = gerr.Error()
			}
			rep.Diagnostics = append(rep.Diagnostics, domain.Diagnostic{
				Kind: domain.UnknownGender, Table: processed.Name, Row: int(row.Ref), ProfileID: id, Detail: detail,
			})
			continue
		}
		v := views[gender]
		idx, exists := v.byID[id]
		if !exists {
			cells := rec.Project(v.header)
			setCell(v.header, cells, domain.ColumnConfirm, domain.No.String())
			setCell(v.header, cells, domain.ColumnPosted, domain.No.String())
			v.insert = append(v.insert, cells)
			v.byID[id] = -1
			rep.Inserted++
			continue
		}
		if idx < 0 {
			rep.Unchanged++
			continue
		}
		pub := v.table.Record(idx)
		srcTime, srcOK, _ := Combined(rec.Value(tsCol), rec.Value(amCol))
		pubTime, pubOK, _ := Combined(pub.Value(tsCol), pub.Value(amCol))
		if !srcOK || !pubOK || !srcTime.After(pubTime) {
			rep.Unchanged++
			continue
		}
		if err := s.refreshPublication(ctx, v, idx, rec, pub); err != nil {
			rep.Skipped++
			s.logger.ErrorContext(ctx, "publication refresh failed", "stage", "sync", "profile_id", id, "error", err)
			continue
		}
		rep.Refreshed++
	}

	for _, g := range []domain.Gender{domain.Female, domain.Male} {
		v := views[g]
		if len(v.insert) == 0 {
			continue
		}
		if err := v.store.AppendRows(ctx, v.insert); err != nil {
			return rep, fmt.Errorf("append %s publication: %w", strings.ToLower(string(g)), err)
		}
	}

	s.report(ctx, "sync", rep.Diagnostics)
	s.metrics.Count(ctx, "sync", "inserted", rep.Inserted)
	s.metrics.Count(ctx, "sync", "refreshed", rep.Refreshed)
	s.metrics.Count(ctx, "sync", "unchanged", rep.Unchanged)
	s.metrics.Count(ctx, "sync", "skipped", rep.Skipped)
	s.logger.InfoContext(ctx, "publication sync complete", "inserted", rep.Inserted, "refreshed", rep.Refreshed,
		"unchanged", rep.Unchanged, "skipped", rep.Skipped)
	return rep, nil
}

// openPublication reads a publication store, writing its header when the
// store is empty and adding any mirrored column it lacks.
func (s *Service) openPublication(ctx context.Context, g domain.Gender) (*publicationView, error) {
	store := s.stores.Publication(g)
	role := strings.ToLower(string(g)) + " publication"
	t, err := s.read(ctx, store, role)
	if err != nil {
		return nil, err
	}
	want := PublicationHeader(s.schema)
	if len(t.Header) == 0 {
		if err := store.WriteHeader(ctx, want); err != nil {
			return nil, fmt.Errorf("write %s header: %w", role, err)
		}
		t.Header = want
	} else {
		for _, col := range want {
			if t.HasColumn(col) {
				continue
			}
			if err := store.EnsureColumn(ctx, col); err != nil {
				return nil, fmt.Errorf("ensure %s column %q: %w", role, col, err)
			}
			t.Header = append(t.Header, col)
		}
	}
	v := &publicationView{store: store, table: t, header: t.Header, byID: map[string]int{}}
	idCol := s.schema.Processed.MustColumn(domain.KeyProfileID)
	for i := range t.Rows {
		id := strings.TrimSpace(t.Record(i).Value(idCol))
		if _, dup := v.byID[id]; id != "" && !dup {
			v.byID[id] = i
		}
	}
	return v, nil
}

func (s *Service) refreshPublication(ctx context.Context, v *publicationView, idx int, src, pub domain.Record) error {
	ref := v.table.Rows[idx].Ref
	// Flags go first so a partial refresh never leaves stale data confirmed.
	order := append([]string{domain.ColumnConfirm, domain.ColumnPosted}, v.header...)
	var errs []error
	for i, col := range order {
		if i >= 2 && (col == domain.ColumnConfirm || col == domain.ColumnPosted) {
			continue
		}
		want := src.Value(col)
		switch col {
		case domain.ColumnConfirm, domain.ColumnPosted:
			want = domain.No.String()
		default:
			if !src.Has(col) {
				continue
			}
		}
		if pub.Value(col) == want {
			continue
		}
		if err := v.store.UpdateCell(ctx, ref, col, want); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func setCell(header, cells []string, column, value string) {
	if i := tabular.ColumnIndex(header, column); i >= 0 {
		cells[i] = value
	}
}
