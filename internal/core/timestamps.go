package core

import (
	"fmt"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseTimestamp reads a store timestamp. Layouts are mixed and ambiguous
// dates are read day first (01/02/2024 is 1 February).
func ParseTimestamp(s string) (time.Time, error) {
	return dateparse.ParseIn(strings.TrimSpace(s), time.UTC, dateparse.PreferMonthFirst(false))
}

// Combined returns the later of a record's creation and amendment times.
// Blank cells are ignored; malformed cells produce diagnostics and are
// excluded. ok is false when neither cell parsed.
func Combined(created, amended string) (latest time.Time, ok bool, bad []string) {
	for _, v := range []string{created, amended} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		ts, err := ParseTimestamp(v)
		if err != nil {
			bad = append(bad, v)
			continue
		}
		if !ok || ts.After(latest) {
			latest, ok = ts, true
		}
	}
	return latest, ok, bad
}

// HighWaterMark is the latest Timestamp or Amended Timestamp across the
// processed table. ok is false when no timestamp parsed.
func HighWaterMark(schema domain.Schema, processed tabular.Table) (mark time.Time, ok bool, diags []domain.Diagnostic) {
	tsCol := schema.Processed.MustColumn(domain.KeyTimestamp)
	amCol := schema.Processed.MustColumn(domain.KeyAmendedTimestamp)
	for i, row := range processed.Rows {
		rec := processed.Record(i)
		latest, parsed, bad := Combined(rec.Value(tsCol), rec.Value(amCol))
		for _, v := range bad {
			diags = append(diags, domain.Diagnostic{
				Kind:      domain.MalformedTimestamp,
				Table:     processed.Name,
				Row:       int(row.Ref),
				ProfileID: rec.Value(schema.Processed.MustColumn(domain.KeyProfileID)),
				Detail:    fmt.Sprintf("cannot parse %q", v),
			})
		}
		if parsed && (!ok || latest.After(mark)) {
			mark, ok = latest, true
		}
	}
	return mark, ok, diags
}
