package core

import (
	"fmt"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"strings"
)

// NewRow is a raw row selected for processing.
type NewRow struct {
	Ref    tabular.RowRef
	Record domain.Record
	// Malformed is set when the row's own Timestamp could not be parsed.
	Malformed bool
}

// Detection is the outcome of comparing the raw table with the processed one.
type Detection struct {
	Rows        []NewRow
	Diagnostics []domain.Diagnostic
}

// DetectNew selects raw rows whose Timestamp is strictly after the processed
// high-water mark. Every raw row is new when processed holds no rows.
//
// Rows with a malformed Timestamp cannot be compared with the mark. They are
// kept and reported, unless a processed row already carries the identical
// Timestamp text, which means an earlier run took them in.
func DetectNew(schema domain.Schema, raw, processed tabular.Table) Detection {
	var out Detection
	mark, hasMark, diags := HighWaterMark(schema, processed)
	out.Diagnostics = append(out.Diagnostics, diags...)
	everything := len(processed.Rows) == 0
	if !everything && !hasMark {
		out.Diagnostics = append(out.Diagnostics, domain.Diagnostic{
			Kind:   domain.MalformedTimestamp,
			Table:  processed.Name,
			Detail: "no parseable timestamp in processed rows; only malformed raw rows are considered",
		})
	}
	seen := processedTimestamps(schema, processed)
	tsCol := strings.TrimSpace(schema.Raw.MustColumn(domain.KeyTimestamp))
	for i, row := range raw.Rows {
		rec := raw.Record(i)
		rec.TrimFieldNames()
		value := rec.Value(tsCol)
		ts, err := ParseTimestamp(value)
		if err != nil {
			d := domain.Diagnostic{
				Kind:   domain.MalformedTimestamp,
				Table:  raw.Name,
				Column: tsCol,
				Row:    int(row.Ref),
				Detail: fmt.Sprintf("cannot parse %q; row treated as new", value),
			}
			if seen.Has(strings.TrimSpace(value)) {
				d.Detail = fmt.Sprintf("cannot parse %q; already processed", value)
				out.Diagnostics = append(out.Diagnostics, d)
				continue
			}
			out.Diagnostics = append(out.Diagnostics, d)
			out.Rows = append(out.Rows, NewRow{Ref: row.Ref, Record: rec, Malformed: true})
			continue
		}
		if everything || (hasMark && ts.After(mark)) {
			out.Rows = append(out.Rows, NewRow{Ref: row.Ref, Record: rec})
		}
	}
	return out
}

// PrepareRecord converts a raw record to the processed shape: Amended
// Timestamp, Profile ID and Profile Key are inserted empty at positions 1-3
// and raw column names are renamed to their processed counterparts through
// shared keys.
func PrepareRecord(schema domain.Schema, raw domain.Record) domain.Record {
	rec := raw.Clone()
	rec.TrimFieldNames()
	rec.Insert(1, schema.Processed.MustColumn(domain.KeyAmendedTimestamp), "")
	rec.Insert(2, schema.Processed.MustColumn(domain.KeyProfileID), "")
	rec.Insert(3, schema.Processed.MustColumn(domain.KeyProfileKey), "")
	for _, f := range schema.Raw.Fields() {
		if target, ok := schema.Processed.Column(f.Key); ok {
			rec.Rename(f.Column, target)
		}
	}
	return rec
}

func processedTimestamps(schema domain.Schema, processed tabular.Table) IDSet {
	col := schema.Processed.MustColumn(domain.KeyTimestamp)
	values := make([]string, len(processed.Rows))
	for i := range processed.Rows {
		values[i] = processed.Record(i).Value(col)
	}
	return NewIDSet(values...)
}

// existingIdentities collects the Profile IDs and Profile Keys already used
// in processed.
func existingIdentities(schema domain.Schema, processed tabular.Table) (ids, keys IDSet) {
	ids, keys = NewIDSet(), NewIDSet()
	idCol := schema.Processed.MustColumn(domain.KeyProfileID)
	keyCol := schema.Processed.MustColumn(domain.KeyProfileKey)
	for i := range processed.Rows {
		rec := processed.Record(i)
		if v := strings.TrimSpace(rec.Value(idCol)); v != "" {
			ids.Add(v)
		}
		if v := strings.TrimSpace(rec.Value(keyCol)); v != "" {
			keys.Add(v)
		}
	}
	return ids, keys
}
