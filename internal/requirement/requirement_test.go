package requirement

import (
	"errors"
	"testing"
)

func TestParseExactKinds(t *testing.T) {
	cases := map[string]Kind{
		"":                          None,
		"none":                      None,
		"  none  ":                  None,
		"log_call_buyer_agent":      LogCallBuyerAgent,
		"log_call_listing_agent":    LogCallListingAgent,
		"log_call_borrower":         LogCallBorrower,
		"log_note_borrower":         LogNoteBorrower,
		"log_any_activity":          LogAnyActivity,
		"auto_complete_only":        AutoCompleteOnly,
		"manual_completion_blocked": AutoCompleteOnly,
	}
	for desc, want := range cases {
		r, err := Parse(desc)
		if err != nil {
			t.Fatalf("Parse(%q): %v", desc, err)
		}
		if r.Kind != want {
			t.Fatalf("Parse(%q) kind = %s, want %s", desc, r.Kind, want)
		}
	}
}

func TestParseFieldPopulated(t *testing.T) {
	r, err := Parse("field_populated:appr_date_time")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != FieldPopulated || r.Field != "appr_date_time" {
		t.Fatalf("unexpected parse: %+v", r)
	}
	if _, err := Parse("field_populated:"); err == nil {
		t.Fatal("expected error for missing field name")
	}
}

func TestParseFieldValue(t *testing.T) {
	r, err := Parse("field_value:package_status=Complete,Waived")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != FieldValue || r.Field != "package_status" {
		t.Fatalf("unexpected parse: %+v", r)
	}
	if len(r.Allowed) != 2 || r.Allowed[0] != "Complete" || r.Allowed[1] != "Waived" {
		t.Fatalf("allow-list = %v", r.Allowed)
	}
	// single value, payload split on first '=' only
	r, err = Parse("field_value:loan_status=SUB")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Allowed) != 1 || r.Allowed[0] != "SUB" {
		t.Fatalf("allow-list = %v", r.Allowed)
	}
	if _, err := Parse("field_value:loan_status"); err == nil {
		t.Fatal("expected error for missing allow-list")
	}
	if _, err := Parse("field_value:loan_status="); err == nil {
		t.Fatal("expected error for empty allow-list")
	}
}

func TestParseCompound(t *testing.T) {
	r, err := Parse("compound:field_populated:lock_date;log_call_borrower")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Compound || len(r.Sub) != 2 {
		t.Fatalf("unexpected parse: %+v", r)
	}
	if r.Sub[0].Kind != FieldPopulated || r.Sub[1].Kind != LogCallBorrower {
		t.Fatalf("sub kinds = %s, %s", r.Sub[0].Kind, r.Sub[1].Kind)
	}
	if _, err := Parse("compound:"); err == nil {
		t.Fatal("expected error for empty compound")
	}
	if _, err := Parse("compound:none"); err == nil {
		t.Fatal("expected error for none sub-requirement")
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("log_call_underwriter")
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRawEchoed(t *testing.T) {
	r, err := Parse("field_value:loan_status=SUB")
	if err != nil {
		t.Fatal(err)
	}
	if r.Raw != "field_value:loan_status=SUB" {
		t.Fatalf("raw = %q", r.Raw)
	}
}
