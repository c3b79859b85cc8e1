package main

import (
	"encoding/json"
	"io"
)

// writeReport prints a stage report as indented JSON so cron logs and
// scripts can pick up the counts.
func writeReport(w io.Writer, stage string, report any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"stage": stage, "report": report})
}
