package core

import (
	"fmt"
	"profileflow/pkg/domain"
	"strings"
)

// CellUpdate is one processed cell to overwrite.
type CellUpdate struct {
	Column string
	Value  string
}

// MergePlan is the set of writes an authenticated amendment produces. It is
// computed from the amendment row alone, so replaying the same amendment
// yields the same plan and the same final record.
type MergePlan struct {
	Style   domain.AmendmentStyle
	Updates []CellUpdate
	// AmendedTimestamp is written when non-empty.
	AmendedTimestamp string
	Diagnostics      []domain.Diagnostic
}

// Apply returns existing with the plan's writes applied.
func (p MergePlan) Apply(existing domain.Record, schema domain.Schema) domain.Record {
	out := existing.Clone()
	for _, u := range p.Updates {
		out.Set(u.Column, u.Value)
	}
	if p.AmendedTimestamp != "" {
		out.Set(schema.Processed.MustColumn(domain.KeyAmendedTimestamp), p.AmendedTimestamp)
	}
	return out
}

// Changes returns only the updates that differ from existing.
func (p MergePlan) Changes(existing domain.Record) []CellUpdate {
	var out []CellUpdate
	for _, u := range p.Updates {
		if v, ok := existing.Get(u.Column); !ok || v != u.Value {
			out = append(out, u)
		}
	}
	return out
}

// NormalizeProfileID trims and upper-cases a claimed Profile ID.
func NormalizeProfileID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeProfileKey trims a claimed Profile Key and drops the leading
// apostrophes spreadsheets use to force text.
func NormalizeProfileKey(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "'"))
}

// PlanAmendment computes the merge of amendment into the processed record
// existing.
//
// Every processed column except Profile ID, Profile Key, Timestamp and
// Amended Timestamp is considered. Columns without a processed mapping are
// skipped with a SchemaDrift diagnostic. With StyleReplace each column takes
// the amendment's mapped value, or blank when the amendment has no mapping.
// With StyleKeepExisting only non-blank amendment values are taken. A Gender
// value whose initial disagrees with the record's Profile ID prefix is
// refused, so Gender is the one column StyleReplace never blanks.
func PlanAmendment(schema domain.Schema, existing, amendment domain.Record, table string) MergePlan {
	plan := MergePlan{Style: domain.ParseAmendmentStyle(amendment.Value(schema.Amendment.MustColumn(domain.KeyAmendmentStyle)))}
	idCol := schema.Processed.MustColumn(domain.KeyProfileID)
	profileID := existing.Value(idCol)
	amendedCol := schema.Processed.MustColumn(domain.KeyAmendedTimestamp)
	genderCol, _ := schema.Processed.Column(domain.KeyGender)

	if col, ok := schema.Amendment.Column(domain.KeyAmendedTimestamp); ok {
		if v := amendment.Value(col); strings.TrimSpace(v) != "" {
			plan.AmendedTimestamp = v
		}
	}
	if plan.Style == domain.StyleUnknown {
		plan.Diagnostics = append(plan.Diagnostics, domain.Diagnostic{
			Kind:      domain.UnknownStyle,
			Table:     table,
			ProfileID: profileID,
			Detail:    fmt.Sprintf("amendment style %q matches no policy; no fields changed", amendment.Value(schema.Amendment.MustColumn(domain.KeyAmendmentStyle))),
		})
		return plan
	}

	for _, col := range existing.Fields() {
		if schema.Protected(col) || col == amendedCol {
			continue
		}
		key, ok := schema.Processed.KeyFor(col)
		if !ok {
			plan.Diagnostics = append(plan.Diagnostics, domain.Diagnostic{
				Kind:      domain.SchemaDrift,
				Table:     table,
				Column:    col,
				ProfileID: profileID,
				Detail:    "column not present in processed mapping; skipped",
			})
			continue
		}
		amCol, mapped := schema.Amendment.Column(key)
		var value string
		switch plan.Style {
		case domain.StyleReplace:
			if mapped {
				value = amendment.Value(amCol)
			}
		case domain.StyleKeepExisting:
			if !mapped {
				continue
			}
			value = amendment.Value(amCol)
			if strings.TrimSpace(value) == "" {
				continue
			}
		}
		if col == genderCol && !genderMatchesID(value, profileID) {
			plan.Diagnostics = append(plan.Diagnostics, domain.Diagnostic{
				Kind:      domain.GenderConflict,
				Table:     table,
				Column:    col,
				ProfileID: profileID,
				Detail:    fmt.Sprintf("gender %q does not match profile id prefix; kept %q", value, existing.Value(col)),
			})
			continue
		}
		plan.Updates = append(plan.Updates, CellUpdate{Column: col, Value: value})
	}
	return plan
}

func genderMatchesID(value, profileID string) bool {
	g, err := domain.ParseGender(value)
	if err != nil {
		return false
	}
	return strings.HasPrefix(NormalizeProfileID(profileID), g.Initial())
}
