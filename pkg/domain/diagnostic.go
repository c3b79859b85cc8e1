package domain

import "fmt"

// DiagnosticKind classifies a recoverable anomaly.
type DiagnosticKind string

const (
	SchemaDrift        DiagnosticKind = "schema_drift"
	MissingColumn      DiagnosticKind = "missing_column"
	MalformedTimestamp DiagnosticKind = "malformed_timestamp"
	UnknownGender      DiagnosticKind = "unknown_gender"
	UnknownStyle       DiagnosticKind = "unknown_amendment_style"
	GenderConflict     DiagnosticKind = "gender_conflict"
)

// Diagnostic is a warning-level finding surfaced to logs and metrics. It never
// aborts a run.
type Diagnostic struct {
	Kind      DiagnosticKind
	Table     string
	Column    string
	Row       int
	ProfileID string
	Detail    string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s table=%s", d.Kind, d.Table)
	if d.Column != "" {
		s += fmt.Sprintf(" column=%q", d.Column)
	}
	if d.Row > 0 {
		s += fmt.Sprintf(" row=%d", d.Row)
	}
	if d.ProfileID != "" {
		s += " profile_id=" + d.ProfileID
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}
