package engine_test

import (
	"testing"

	"loanline/internal/domain"
	"loanline/internal/engine"
)

func TestPlanForPassingResult(t *testing.T) {
	if plan := engine.PlanFor(domain.ValidationResult{CanComplete: true}); plan != nil {
		t.Fatalf("expected nil plan, got %+v", plan)
	}
}

func TestPlanClassification(t *testing.T) {
	cases := []struct {
		missing string
		kind    string
	}{
		{"log_call_buyer_agent", engine.RemediationCall},
		{"log_call_listing_agent", engine.RemediationCall},
		{"log_call_borrower", engine.RemediationCall},
		{"log_note_borrower", engine.RemediationAnyActivity},
		{"log_any_activity", engine.RemediationAnyActivity},
		{"field_populated:appr_date_time", engine.RemediationField},
		{"field_value:loan_status=SUB", engine.RemediationField},
		{"compound:log_note_borrower;field_populated:lock_date", engine.RemediationCompound},
		{"auto_complete_only", engine.RemediationAutoCompleteOnly},
		{"some_future_gate", engine.RemediationUnknown},
	}
	for _, tc := range cases {
		plan := engine.PlanFor(domain.ValidationResult{MissingRequirement: tc.missing, Message: "blocked"})
		if plan == nil {
			t.Fatalf("%s: expected a plan", tc.missing)
		}
		if plan.Kind != tc.kind {
			t.Errorf("%s: kind = %s, want %s", tc.missing, plan.Kind, tc.kind)
		}
		if len(plan.Actions) == 0 {
			t.Errorf("%s: plan has no actions", tc.missing)
		}
	}
}

func TestPlanCallOffersLogCall(t *testing.T) {
	contact := &domain.ContactInfo{Name: "Sam Ortiz", Type: "buyer_agent", ID: "a1"}
	plan := engine.PlanFor(domain.ValidationResult{MissingRequirement: "log_call_buyer_agent", ContactInfo: contact})
	if plan.Contact == nil || plan.Contact.Name != "Sam Ortiz" {
		t.Fatalf("contact = %+v", plan.Contact)
	}
	if plan.Actions[0] != engine.ActionLogCall {
		t.Fatalf("actions = %v", plan.Actions)
	}
}

// The auto-complete notice must never offer a way to force completion.
func TestPlanAutoCompleteOnlyIsDismissOnly(t *testing.T) {
	plan := engine.PlanFor(domain.ValidationResult{MissingRequirement: "auto_complete_only"})
	if len(plan.Actions) != 1 || plan.Actions[0] != engine.ActionDismiss {
		t.Fatalf("actions = %v", plan.Actions)
	}
	if plan.Contact != nil {
		t.Fatalf("contact should be absent: %+v", plan.Contact)
	}
}
