package engine

import (
	"loanline/internal/domain"
	"loanline/internal/requirement"
)

// Remediation kinds drive which presentation a consumer renders for a
// blocked completion.
const (
	RemediationCall             = "call"
	RemediationAnyActivity      = "any_activity"
	RemediationField            = "field"
	RemediationCompound         = "compound"
	RemediationAutoCompleteOnly = "auto_complete_only"
	RemediationUnknown          = "unknown"
)

// Remediation actions are one-click affordances the consumer may offer.
const (
	ActionLogCall  = "log_call"
	ActionOpenLead = "open_lead"
	ActionDismiss  = "dismiss"
)

// RemediationPlan tells a consumer how to present a blocked completion:
// which modal to show, what it says, and which actions to offer. The
// auto-complete-only plan never carries an action that forces completion.
type RemediationPlan struct {
	Kind    string              `json:"kind" enum:"call,any_activity,field,compound,auto_complete_only,unknown"`
	Title   string              `json:"title"`
	Detail  string              `json:"detail,omitempty"`
	Actions []string            `json:"actions"`
	Contact *domain.ContactInfo `json:"contact,omitempty"`
}

// PlanFor builds the remediation plan for a denial. Returns nil when the
// result allows completion.
func PlanFor(result domain.ValidationResult) *RemediationPlan {
	if result.CanComplete {
		return nil
	}
	plan := &RemediationPlan{
		Kind:    RemediationUnknown,
		Title:   "Task cannot be completed",
		Detail:  result.Message,
		Actions: []string{ActionDismiss},
		Contact: result.ContactInfo,
	}
	req, err := requirement.Parse(result.MissingRequirement)
	if err != nil {
		return plan
	}
	switch {
	case req.IsCallKind():
		plan.Kind = RemediationCall
		plan.Title = "Call required"
		plan.Actions = []string{ActionLogCall, ActionOpenLead, ActionDismiss}
	case req.Kind == requirement.LogNoteBorrower, req.Kind == requirement.LogAnyActivity:
		plan.Kind = RemediationAnyActivity
		plan.Title = "Activity required"
		plan.Actions = []string{ActionOpenLead, ActionDismiss}
	case req.Kind == requirement.FieldPopulated, req.Kind == requirement.FieldValue:
		plan.Kind = RemediationField
		plan.Title = "Lead field required"
		plan.Actions = []string{ActionOpenLead, ActionDismiss}
	case req.Kind == requirement.Compound:
		plan.Kind = RemediationCompound
		plan.Title = "Multiple requirements"
		plan.Actions = []string{ActionOpenLead, ActionDismiss}
	case req.Kind == requirement.AutoCompleteOnly:
		plan.Kind = RemediationAutoCompleteOnly
		plan.Title = "Completed automatically"
		plan.Actions = []string{ActionDismiss}
		plan.Contact = nil
	}
	return plan
}
