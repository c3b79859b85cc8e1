package core

import (
	"profileflow/pkg/domain"
	"testing"
)

func processedRecord() domain.Record {
	return domain.NewRecord(prcHeader, []string{
		"01/01/2024 10:00:00", "", "F0427", "12345", "Aisha", "Female", "aisha@example.com", "0700", "0711", "old about",
	})
}

func amendmentRecord(style string, cells map[string]string) domain.Record {
	rec := domain.NewRecord(amdHeader, nil)
	rec.Set("Timestamp", "05/01/2024 09:00:00")
	rec.Set("Profile ID", "F0427")
	rec.Set("Profile Key", "12345")
	rec.Set("Amendment Style", style)
	for k, v := range cells {
		rec.Set(k, v)
	}
	return rec
}

func TestPlanReplaceBlanksUnsuppliedFields(t *testing.T) {
	schema := testSchema()
	existing := processedRecord()
	am := amendmentRecord("Replace PDF completely", map[string]string{"Full Name": "Aisha B", "Gender": "Female", "About you": ""})
	plan := PlanAmendment(schema, existing, am, "amendments")
	merged := plan.Apply(existing, schema)

	if merged.Value("About") != "" {
		t.Fatalf("replace with empty value must blank the field, got %q", merged.Value("About"))
	}
	if merged.Value("Representative's Number") != "" {
		t.Fatalf("replace must blank fields the amendment has no mapping for")
	}
	if merged.Value("Full Name") != "Aisha B" {
		t.Fatalf("full name not replaced")
	}
	if merged.Value("Amended Timestamp") != "05/01/2024 09:00:00" {
		t.Fatalf("amended timestamp not advanced: %q", merged.Value("Amended Timestamp"))
	}
}

func TestPlanReplaceKeepsGenderWhenBlank(t *testing.T) {
	schema := testSchema()
	existing := processedRecord()
	am := amendmentRecord("Replace PDF completely", map[string]string{"Full Name": "Aisha B", "Gender": ""})
	plan := PlanAmendment(schema, existing, am, "amendments")
	for _, u := range plan.Updates {
		if u.Column == "Gender" {
			t.Fatalf("replace must not write Gender, got update %+v", u)
		}
	}
	merged := plan.Apply(existing, schema)
	if merged.Value("Gender") != "Female" || merged.Value("Email") != "" {
		t.Fatalf("expected gender kept and email blanked: %v", merged.Values())
	}
}

func TestPlanKeepExistingOnlyNonBlank(t *testing.T) {
	schema := testSchema()
	existing := processedRecord()
	am := amendmentRecord("Keep existing PDF", map[string]string{"Phone": "0799", "About you": "   ", "Full Name": ""})
	merged := PlanAmendment(schema, existing, am, "amendments").Apply(existing, schema)
	if merged.Value("Phone Number") != "0799" {
		t.Fatalf("phone not updated")
	}
	if merged.Value("About") != "old about" || merged.Value("Full Name") != "Aisha" || merged.Value("Representative's Number") != "0711" {
		t.Fatalf("blank or unmapped fields must be kept: %v", merged.Values())
	}
}

func TestPlanKeepExistingIsIdempotent(t *testing.T) {
	schema := testSchema()
	am := amendmentRecord("Keep existing PDF", map[string]string{"Phone": "0799", "About you": "new"})
	once := PlanAmendment(schema, processedRecord(), am, "amendments").Apply(processedRecord(), schema)
	twicePlan := PlanAmendment(schema, once, am, "amendments")
	twice := twicePlan.Apply(once, schema)
	if !once.Equal(twice) {
		t.Fatalf("replay changed the record:\n%v\n%v", once.Values(), twice.Values())
	}
	if len(twicePlan.Changes(once)) != 0 {
		t.Fatalf("replay should need no writes, got %v", twicePlan.Changes(once))
	}
}

func TestPlanNeverTouchesProtectedFields(t *testing.T) {
	schema := testSchema()
	for _, style := range []string{"Replace PDF completely", "Keep existing PDF", "??"} {
		existing := processedRecord()
		am := amendmentRecord(style, map[string]string{"Profile ID": "M9999", "Profile Key": "00000", "Full Name": "X"})
		plan := PlanAmendment(schema, existing, am, "amendments")
		for _, u := range plan.Updates {
			if schema.Protected(u.Column) {
				t.Fatalf("%s: protected column %s in plan", style, u.Column)
			}
		}
		merged := plan.Apply(existing, schema)
		for _, c := range []string{"Profile ID", "Profile Key", "Timestamp"} {
			if merged.Value(c) != existing.Value(c) {
				t.Fatalf("%s: protected %s changed", style, c)
			}
		}
	}
}

func TestPlanUnknownStyleChangesNothing(t *testing.T) {
	schema := testSchema()
	plan := PlanAmendment(schema, processedRecord(), amendmentRecord("Please update", map[string]string{"Full Name": "X"}), "amendments")
	if len(plan.Updates) != 0 || plan.Style != domain.StyleUnknown {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if len(plan.Diagnostics) != 1 || plan.Diagnostics[0].Kind != domain.UnknownStyle {
		t.Fatalf("expected unknown style diagnostic, got %v", plan.Diagnostics)
	}
	if plan.AmendedTimestamp == "" {
		t.Fatalf("timestamp still advances for unknown styles")
	}
}

func TestPlanReportsDriftAndGenderConflict(t *testing.T) {
	schema := testSchema()
	existing := processedRecord()
	existing.Set("Hobbies", "reading")
	am := amendmentRecord("Keep existing PDF", map[string]string{"Gender": "Male"})
	plan := PlanAmendment(schema, existing, am, "amendments")
	kinds := map[domain.DiagnosticKind]int{}
	for _, d := range plan.Diagnostics {
		kinds[d.Kind]++
	}
	if kinds[domain.SchemaDrift] != 1 || kinds[domain.GenderConflict] != 1 {
		t.Fatalf("unexpected diagnostics %v", plan.Diagnostics)
	}
	if merged := plan.Apply(existing, schema); merged.Value("Gender") != "Female" || merged.Value("Hobbies") != "reading" {
		t.Fatalf("conflicting gender or drift column was written")
	}
}

func TestNormalizeClaims(t *testing.T) {
	if got := NormalizeProfileID("  f0427 "); got != "F0427" {
		t.Fatalf("id = %q", got)
	}
	if got := NormalizeProfileKey(" '01234 "); got != "01234" {
		t.Fatalf("key = %q", got)
	}
	if got := NormalizeProfileKey("''  00042"); got != "00042" {
		t.Fatalf("key = %q", got)
	}
}
