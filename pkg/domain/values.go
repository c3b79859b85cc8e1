package domain

import (
	"fmt"
	"strings"
)

// Flag is the two-state value stored in the Posted? and Confirm? columns.
type Flag bool

const (
	No  Flag = false
	Yes Flag = true
)

// ParseFlag reads a stored flag. Anything other than "yes" (trimmed,
// case-insensitive) is No.
func ParseFlag(s string) Flag {
	return Flag(strings.EqualFold(strings.TrimSpace(s), "yes"))
}

// LookupFlag is ParseFlag that also reports whether s was an explicit
// "yes" or "no". Blank and unrecognised values report false.
func LookupFlag(s string) (Flag, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return Yes, true
	case "no":
		return No, true
	}
	return No, false
}

func (f Flag) String() string {
	if f {
		return "Yes"
	}
	return "No"
}

// Gender routes a profile to its ID prefix and publication store.
type Gender string

const (
	Female Gender = "Female"
	Male   Gender = "Male"
)

// ParseGender accepts exactly "Female" or "Male" after trimming.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.TrimSpace(s)); g {
	case Female, Male:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
}

// Initial returns the ProfileID prefix letter.
func (g Gender) Initial() string {
	if g == "" {
		return ""
	}
	return string(g[:1])
}

// AmendmentStyle selects how an amendment merges into a processed record.
type AmendmentStyle int

const (
	StyleUnknown AmendmentStyle = iota
	StyleKeepExisting
	StyleReplace
)

// ParseAmendmentStyle substring-matches the free text of an amendment row.
// Replacement wins when both phrases appear.
func ParseAmendmentStyle(s string) AmendmentStyle {
	switch {
	case strings.Contains(s, "Replace PDF completely"):
		return StyleReplace
	case strings.Contains(s, "Keep existing"):
		return StyleKeepExisting
	}
	return StyleUnknown
}

func (s AmendmentStyle) String() string {
	switch s {
	case StyleReplace:
		return "replace"
	case StyleKeepExisting:
		return "keep_existing"
	}
	return "unknown"
}

// AmendmentStatus is written to the Amendment Status column once a row is handled.
type AmendmentStatus string

const (
	StatusPending  AmendmentStatus = ""
	StatusComplete AmendmentStatus = "Complete"
	StatusFailed   AmendmentStatus = "Failed"
)

// Pending reports whether a stored status still needs processing.
func Pending(stored string) bool {
	return strings.TrimSpace(stored) == ""
}
