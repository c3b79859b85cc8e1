// Package domain defines the profile record, schema mapping and value types
// shared by the reconciliation engine and its collaborators.
package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Record is an ordered mapping of column name to cell value for one row of a
// tabular store. Field order follows the store header and is preserved by
// every mutation so records can be written back positionally.
type Record struct {
	fields []string
	values map[string]string
}

// NewRecord zips a header with a row. Short rows are padded with empty
// values; surplus cells without a header are dropped.
func NewRecord(header []string, cells []string) Record {
	r := Record{
		fields: make([]string, 0, len(header)),
		values: make(map[string]string, len(header)),
	}
	for i, name := range header {
		value := ""
		if i < len(cells) {
			value = cells[i]
		}
		r.Set(name, value)
	}
	return r
}

// Fields returns the column names in order.
func (r Record) Fields() []string {
	return append([]string(nil), r.fields...)
}

// Len reports the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Has reports whether the record carries the named field.
func (r Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Get returns the value of field and whether the field exists.
func (r Record) Get(field string) (string, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Value returns the value of field or the empty string.
func (r Record) Value(field string) string {
	return r.values[field]
}

// Set assigns value to field, appending the field when it is new.
func (r *Record) Set(field, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = value
}

// Insert places field at position pos (clamped), moving it if it already exists.
func (r *Record) Insert(pos int, field, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[field]; ok {
		r.remove(field)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(r.fields) {
		pos = len(r.fields)
	}
	r.fields = append(r.fields, "")
	copy(r.fields[pos+1:], r.fields[pos:])
	r.fields[pos] = field
	r.values[field] = value
}

// Rename changes a field name in place, keeping its position. Renaming onto an
// existing field is ignored.
func (r *Record) Rename(from, to string) {
	if from == to {
		return
	}
	v, ok := r.values[from]
	if !ok {
		return
	}
	if _, clash := r.values[to]; clash {
		return
	}
	for i, f := range r.fields {
		if f == from {
			r.fields[i] = to
			break
		}
	}
	delete(r.values, from)
	r.values[to] = v
}

func (r *Record) remove(field string) {
	for i, f := range r.fields {
		if f == field {
			r.fields = append(r.fields[:i], r.fields[i+1:]...)
			break
		}
	}
	delete(r.values, field)
}

// Project returns the cells of the record aligned to header. Columns the
// record does not carry are emitted empty.
func (r Record) Project(header []string) []string {
	out := make([]string, len(header))
	for i, name := range header {
		out[i] = r.values[name]
	}
	return out
}

// Values returns the cells in field order.
func (r Record) Values() []string {
	return r.Project(r.fields)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	cp := Record{
		fields: append([]string(nil), r.fields...),
		values: make(map[string]string, len(r.values)),
	}
	for k, v := range r.values {
		cp.values[k] = v
	}
	return cp
}

// Equal reports whether both records carry the same fields, order and values.
func (r Record) Equal(other Record) bool {
	if len(r.fields) != len(other.fields) {
		return false
	}
	for i, f := range r.fields {
		if other.fields[i] != f || other.values[f] != r.values[f] {
			return false
		}
	}
	return true
}

// TrimFieldNames strips surrounding whitespace from every field name.
func (r *Record) TrimFieldNames() {
	for _, f := range append([]string(nil), r.fields...) {
		r.Rename(f, strings.TrimSpace(f))
	}
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Without returns a copy of the record with the named fields removed.
func (r Record) Without(fields ...string) Record {
	cp := r.Clone()
	for _, f := range fields {
		if cp.Has(f) {
			cp.remove(f)
		}
	}
	return cp
}
