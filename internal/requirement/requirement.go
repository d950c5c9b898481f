// Package requirement parses task completion requirement descriptors.
//
// A descriptor is a short string stored on a task, e.g. "log_call_buyer_agent"
// or "field_value:loan_status=SUB". Parse turns it into a tagged Requirement
// so the rest of the system never dispatches on raw strings.
package requirement

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	None                Kind = "none"
	LogCallBuyerAgent   Kind = "log_call_buyer_agent"
	LogCallListingAgent Kind = "log_call_listing_agent"
	LogCallBorrower     Kind = "log_call_borrower"
	LogNoteBorrower     Kind = "log_note_borrower"
	LogAnyActivity      Kind = "log_any_activity"
	FieldPopulated      Kind = "field_populated"
	FieldValue          Kind = "field_value"
	Compound            Kind = "compound"
	AutoCompleteOnly    Kind = "auto_complete_only"
)

// ErrUnknownKind marks a descriptor that matches no known shape. Callers
// treat this as a blocked completion (fail closed), distinct from malformed
// payloads which are plain errors.
var ErrUnknownKind = errors.New("unknown completion requirement")

// Requirement is the parsed form of a descriptor.
type Requirement struct {
	Kind Kind
	// Raw is the original descriptor, echoed into validation results.
	Raw string
	// Field is set for FieldPopulated and FieldValue.
	Field string
	// Allowed is the declared allow-list for FieldValue, in declaration
	// order. Synonym expansion happens at evaluation time, never here.
	Allowed []string
	// Sub holds the parsed sub-requirements of a Compound descriptor.
	Sub []Requirement
}

// Parse interprets a descriptor string. Empty and "none" mean no gate.
func Parse(raw string) (Requirement, error) {
	desc := strings.TrimSpace(raw)
	switch desc {
	case "", "none":
		return Requirement{Kind: None, Raw: desc}, nil
	case "log_call_buyer_agent":
		return Requirement{Kind: LogCallBuyerAgent, Raw: desc}, nil
	case "log_call_listing_agent":
		return Requirement{Kind: LogCallListingAgent, Raw: desc}, nil
	case "log_call_borrower":
		return Requirement{Kind: LogCallBorrower, Raw: desc}, nil
	case "log_note_borrower":
		return Requirement{Kind: LogNoteBorrower, Raw: desc}, nil
	case "log_any_activity":
		return Requirement{Kind: LogAnyActivity, Raw: desc}, nil
	case "auto_complete_only", "manual_completion_blocked":
		return Requirement{Kind: AutoCompleteOnly, Raw: desc}, nil
	}
	switch {
	case strings.HasPrefix(desc, "field_populated:"):
		return parseFieldPopulated(desc)
	case strings.HasPrefix(desc, "field_value:"):
		return parseFieldValue(desc)
	case strings.HasPrefix(desc, "compound:"):
		return parseCompound(desc)
	}
	return Requirement{}, fmt.Errorf("%w: %q", ErrUnknownKind, desc)
}

func parseFieldPopulated(desc string) (Requirement, error) {
	_, payload, _ := strings.Cut(desc, ":")
	field := strings.TrimSpace(payload)
	if field == "" {
		return Requirement{}, fmt.Errorf("field_populated: missing field name in %q", desc)
	}
	return Requirement{Kind: FieldPopulated, Raw: desc, Field: field}, nil
}

func parseFieldValue(desc string) (Requirement, error) {
	_, payload, _ := strings.Cut(desc, ":")
	field, list, ok := strings.Cut(payload, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return Requirement{}, fmt.Errorf("field_value: expected <field>=<values> in %q", desc)
	}
	var allowed []string
	for _, v := range strings.Split(list, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			allowed = append(allowed, v)
		}
	}
	if len(allowed) == 0 {
		return Requirement{}, fmt.Errorf("field_value: empty allow-list in %q", desc)
	}
	return Requirement{Kind: FieldValue, Raw: desc, Field: field, Allowed: allowed}, nil
}

func parseCompound(desc string) (Requirement, error) {
	_, payload, _ := strings.Cut(desc, ":")
	var sub []Requirement
	for _, part := range strings.Split(payload, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := Parse(part)
		if err != nil {
			return Requirement{}, fmt.Errorf("compound: %w", err)
		}
		switch r.Kind {
		case Compound:
			return Requirement{}, fmt.Errorf("compound: nested compound in %q", desc)
		case None, AutoCompleteOnly:
			return Requirement{}, fmt.Errorf("compound: %s is not a valid sub-requirement in %q", r.Kind, desc)
		}
		sub = append(sub, r)
	}
	if len(sub) == 0 {
		return Requirement{}, fmt.Errorf("compound: no sub-requirements in %q", desc)
	}
	return Requirement{Kind: Compound, Raw: desc, Sub: sub}, nil
}

// IsCallKind reports whether the requirement is cleared by logging a call.
func (r Requirement) IsCallKind() bool {
	switch r.Kind {
	case LogCallBuyerAgent, LogCallListingAgent, LogCallBorrower:
		return true
	}
	return false
}
