package domain

import (
	"fmt"
	"strings"
)

// Semantic keys shared by the raw, amendment and processed mappings.
const (
	KeyTimestamp        = "Timestamp"
	KeyAmendedTimestamp = "Amended Timestamp"
	KeyProfileID        = "Profile ID"
	KeyProfileKey       = "Profile Key"
	KeyGender           = "Gender"
	KeyFullName         = "Full Name"
	KeyEmail            = "Email"
	KeyPhoneNumber      = "Phone Number"
	KeyRepresentative   = "Representative's Number"
	KeyAmendmentStyle   = "Amendment Style"
)

// Operational columns synthesized by the pipeline. They are never mapped.
const (
	ColumnPosted          = "Posted?"
	ColumnConfirm         = "Confirm?"
	ColumnAmendmentStatus = "Amendment Status"
)

// legacyKeys maps historical spellings found in older mapping files.
var legacyKeys = map[string]string{
	"Ammended Timestamp": KeyAmendedTimestamp,
}

// NormalizeKey trims a semantic key and folds legacy spellings.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if k, ok := legacyKeys[key]; ok {
		return k
	}
	return key
}

// Field pairs a semantic key with the literal column used by one store.
type Field struct {
	Key    string
	Column string
}

// Mapping is an ordered key to column dictionary for one store.
type Mapping struct {
	fields   []Field
	byKey    map[string]string
	byColumn map[string]string
}

// NewMapping builds a mapping; later duplicates of a key replace earlier ones.
func NewMapping(fields ...Field) Mapping {
	m := Mapping{byKey: map[string]string{}, byColumn: map[string]string{}}
	for _, f := range fields {
		m.add(f.Key, f.Column)
	}
	return m
}

func (m *Mapping) add(key, column string) {
	key = NormalizeKey(key)
	column = strings.TrimSpace(column)
	if prev, ok := m.byKey[key]; ok {
		delete(m.byColumn, prev)
		for i := range m.fields {
			if m.fields[i].Key == key {
				m.fields[i].Column = column
			}
		}
	} else {
		m.fields = append(m.fields, Field{Key: key, Column: column})
	}
	m.byKey[key] = column
	m.byColumn[column] = key
}

// Column returns the store column for key.
func (m Mapping) Column(key string) (string, bool) {
	c, ok := m.byKey[NormalizeKey(key)]
	return c, ok
}

// MustColumn returns the column for key or the key itself when unmapped.
func (m Mapping) MustColumn(key string) string {
	if c, ok := m.Column(key); ok {
		return c
	}
	return key
}

// KeyFor returns the semantic key whose column is column.
func (m Mapping) KeyFor(column string) (string, bool) {
	k, ok := m.byColumn[strings.TrimSpace(column)]
	return k, ok
}

// Keys returns the semantic keys in declaration order.
func (m Mapping) Keys() []string {
	out := make([]string, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.Key
	}
	return out
}

// Fields returns a copy of the ordered pairs.
func (m Mapping) Fields() []Field { return append([]Field(nil), m.fields...) }

// Len reports the number of mapped keys.
func (m Mapping) Len() int { return len(m.fields) }

// Role identifies which store a mapping describes.
type Role string

const (
	RoleRaw         Role = "raw"
	RoleAmendment   Role = "amendment"
	RoleProcessed   Role = "processed"
	RolePublication Role = "publication"
)

// Schema is the explicit configuration object handed to the engine. It holds
// one mapping per store.
type Schema struct {
	Raw       Mapping
	Amendment Mapping
	Processed Mapping
}

var requiredKeys = map[Role][]string{
	RoleRaw:       {KeyTimestamp, KeyGender},
	RoleAmendment: {KeyProfileID, KeyProfileKey, KeyAmendmentStyle},
	RoleProcessed: {KeyTimestamp, KeyAmendedTimestamp, KeyProfileID, KeyProfileKey, KeyGender},
}

// Check reports structural problems that make the schema unusable.
func (s Schema) Check() error {
	var missing []string
	for _, role := range []Role{RoleRaw, RoleAmendment, RoleProcessed} {
		m := s.mapping(role)
		for _, key := range requiredKeys[role] {
			if _, ok := m.Column(key); !ok {
				missing = append(missing, fmt.Sprintf("%s.%s", role, key))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing keys %s", ErrInvalidSchema, strings.Join(missing, ", "))
	}
	return nil
}

func (s Schema) mapping(role Role) Mapping {
	switch role {
	case RoleRaw:
		return s.Raw
	case RoleAmendment:
		return s.Amendment
	default:
		return s.Processed
	}
}

// Validate compares a store header against the mapping for role. Header
// columns absent from the mapping yield SchemaDrift diagnostics; mapped
// columns absent from the header yield MissingColumn diagnostics. Operational
// columns are ignored.
func (s Schema) Validate(role Role, table string, header []string) []Diagnostic {
	m := s.mapping(role)
	present := make(map[string]bool, len(header))
	var out []Diagnostic
	for _, col := range header {
		col = strings.TrimSpace(col)
		present[col] = true
		if col == "" || isOperational(col) {
			continue
		}
		if _, ok := m.KeyFor(col); !ok {
			out = append(out, Diagnostic{Kind: SchemaDrift, Table: table, Column: col,
				Detail: fmt.Sprintf("column not present in %s mapping", role)})
		}
	}
	if len(header) == 0 {
		return out
	}
	for _, f := range m.fields {
		if !present[f.Column] {
			out = append(out, Diagnostic{Kind: MissingColumn, Table: table, Column: f.Column,
				Detail: fmt.Sprintf("mapped key %q has no column", f.Key)})
		}
	}
	return out
}

// Protected reports whether a processed column may never be written by a merge.
func (s Schema) Protected(column string) bool {
	for _, key := range []string{KeyProfileID, KeyProfileKey, KeyTimestamp} {
		if c, ok := s.Processed.Column(key); ok && c == column {
			return true
		}
	}
	return false
}

func isOperational(col string) bool {
	switch col {
	case ColumnPosted, ColumnConfirm, ColumnAmendmentStatus:
		return true
	}
	return false
}
