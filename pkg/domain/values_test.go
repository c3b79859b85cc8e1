package domain

import (
	"errors"
	"testing"
)

func TestParseFlag(t *testing.T) {
	cases := map[string]Flag{"Yes": Yes, " yes ": Yes, "YES": Yes, "No": No, "": No, "y": No}
	for in, want := range cases {
		if got := ParseFlag(in); got != want {
			t.Fatalf("ParseFlag(%q) = %v", in, got)
		}
	}
	if Yes.String() != "Yes" || No.String() != "No" {
		t.Fatalf("flag string mismatch")
	}
}

func TestParseGender(t *testing.T) {
	g, err := ParseGender(" Female")
	if err != nil || g != Female || g.Initial() != "F" {
		t.Fatalf("got %q %v", g, err)
	}
	if _, err := ParseGender("female"); !errors.Is(err, ErrInvalidGender) {
		t.Fatalf("expected ErrInvalidGender, got %v", err)
	}
}

func TestParseAmendmentStyle(t *testing.T) {
	cases := []struct {
		in   string
		want AmendmentStyle
	}{
		{"Keep existing PDF, only update the fields I fill", StyleKeepExisting},
		{"Replace PDF completely", StyleReplace},
		{"Replace PDF completely / Keep existing", StyleReplace},
		{"something else", StyleUnknown},
	}
	for _, c := range cases {
		if got := ParseAmendmentStyle(c.in); got != c.want {
			t.Fatalf("ParseAmendmentStyle(%q) = %v", c.in, got)
		}
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := error(NotFoundError{Table: "processed", Key: "F0001"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("NotFoundError should match sentinel")
	}
	if err.Error() != "processed: F0001 not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLookupFlag(t *testing.T) {
	if f, ok := LookupFlag(" NO "); !ok || f != No {
		t.Fatalf("expected explicit no")
	}
	if f, ok := LookupFlag("Yes"); !ok || f != Yes {
		t.Fatalf("expected explicit yes")
	}
	if _, ok := LookupFlag(""); ok {
		t.Fatalf("blank must not be explicit")
	}
}
