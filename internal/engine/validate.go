package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loanline/internal/domain"
	"loanline/internal/repo"
	"loanline/internal/requirement"
)

// ValidateTaskCompletion checks whether a task's completion requirement is
// satisfied. It is read-only and idempotent: no writes, at most one evidence
// query per leaf requirement. Tasks with no requirement pass without touching
// the store at all.
//
// A blocked completion is a normal result, not an error. Errors are reserved
// for malformed descriptors and unexpected store failures the resolvers do
// not absorb.
func (e Engine) ValidateTaskCompletion(ctx context.Context, d domain.TaskDetail) (domain.ValidationResult, error) {
	desc := ""
	if d.CompletionRequirement != nil {
		desc = *d.CompletionRequirement
	}
	req, err := requirement.Parse(desc)
	if err != nil {
		if errors.Is(err, requirement.ErrUnknownKind) {
			// Fail closed on kinds this build does not know, rather than
			// silently completing a gated task.
			e.logf("task %s: %v", d.ID, err)
			return domain.ValidationResult{
				Message:            "This task has an unrecognized completion requirement",
				MissingRequirement: desc,
			}, nil
		}
		return domain.ValidationResult{}, err
	}
	return e.evaluate(ctx, d, req)
}

// ValidateTask loads a task with its joined relations and validates it.
func (e Engine) ValidateTask(ctx context.Context, taskID string) (domain.TaskDetail, domain.ValidationResult, error) {
	d, err := e.Repo.GetTaskDetail(ctx, taskID)
	if err != nil {
		return domain.TaskDetail{}, domain.ValidationResult{}, err
	}
	result, err := e.ValidateTaskCompletion(ctx, d)
	return d, result, err
}

func (e Engine) evaluate(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	switch req.Kind {
	case requirement.None:
		return domain.ValidationResult{CanComplete: true}, nil
	case requirement.LogCallBuyerAgent, requirement.LogCallListingAgent:
		return e.resolveAgentCall(ctx, d, req)
	case requirement.LogCallBorrower, requirement.LogNoteBorrower, requirement.LogAnyActivity:
		return e.resolveBorrowerActivity(ctx, d, req)
	case requirement.FieldPopulated:
		return e.resolveFieldPopulated(ctx, d, req)
	case requirement.FieldValue:
		return e.resolveFieldValue(ctx, d, req)
	case requirement.Compound:
		return e.resolveCompound(ctx, d, req)
	case requirement.AutoCompleteOnly:
		return domain.ValidationResult{
			Message:            "This task is completed automatically and cannot be completed manually",
			MissingRequirement: req.Raw,
		}, nil
	}
	return domain.ValidationResult{}, fmt.Errorf("unhandled requirement kind %s", req.Kind)
}

// resolveAgentCall requires a logged call for the lead's buyer or listing
// agent. A lead with no such agent assigned passes vacuously: the
// prerequisite structurally cannot apply, so it cannot block.
func (e Engine) resolveAgentCall(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	var agentID *string
	var agent *domain.Agent
	contactType := "buyer_agent"
	label := "Buyer's Agent"
	party := "the buyer's agent"
	if req.Kind == requirement.LogCallListingAgent {
		contactType = "listing_agent"
		label = "Listing Agent"
		party = "the listing agent"
	}
	if d.Lead != nil {
		if req.Kind == requirement.LogCallListingAgent {
			agentID = d.Lead.ListingAgentID
			agent = d.ListingAgent
		} else {
			agentID = d.Lead.BuyerAgentID
			agent = d.BuyerAgent
		}
	}
	if agentID == nil {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	_, err := e.Repo.LatestCallLogByAgent(ctx, *agentID)
	if err == nil {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		// Fail closed: an unreachable store blocks completion the same way
		// missing evidence does.
		e.logf("task %s: call log lookup for agent %s: %v", d.ID, *agentID, err)
	}
	contact := &domain.ContactInfo{Name: label, Type: contactType, ID: *agentID}
	if agent != nil {
		if n := agent.Name(); n != "" {
			contact.Name = n
		}
		contact.Phone = agent.Phone
	}
	return domain.ValidationResult{
		Message:            fmt.Sprintf("You must log a call with %s before completing this task", party),
		MissingRequirement: req.Raw,
		ContactInfo:        contact,
	}, nil
}

// resolveBorrowerActivity covers the three borrower-scoped evidence kinds:
// a logged call, a note, or either one.
func (e Engine) resolveBorrowerActivity(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	if d.LeadID == nil {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	leadID := *d.LeadID

	found := false
	var message string
	switch req.Kind {
	case requirement.LogCallBorrower:
		found = e.hasCall(ctx, d.ID, leadID)
		message = "You must log a call with the borrower before completing this task"
	case requirement.LogNoteBorrower:
		found = e.hasNote(ctx, d.ID, leadID)
		message = "You must add a note for the borrower before completing this task"
	case requirement.LogAnyActivity:
		found = e.hasCall(ctx, d.ID, leadID) || e.hasNote(ctx, d.ID, leadID)
		message = "You must log a call or add a note for the borrower before completing this task"
	}
	if found {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	contact := &domain.ContactInfo{Name: "Borrower", Type: "borrower", ID: leadID}
	if d.Lead != nil {
		if n := d.Lead.Name(); n != "" {
			contact.Name = n
		}
		contact.Phone = d.Lead.Phone
	}
	return domain.ValidationResult{
		Message:            message,
		MissingRequirement: req.Raw,
		ContactInfo:        contact,
	}, nil
}

func (e Engine) hasCall(ctx context.Context, taskID, leadID string) bool {
	_, err := e.Repo.LatestCallLogByLead(ctx, leadID)
	if err == nil {
		return true
	}
	if !errors.Is(err, repo.ErrNotFound) {
		e.logf("task %s: call log lookup for lead %s: %v", taskID, leadID, err)
	}
	return false
}

func (e Engine) hasNote(ctx context.Context, taskID, leadID string) bool {
	_, err := e.Repo.LatestNoteByLead(ctx, leadID)
	if err == nil {
		return true
	}
	if !errors.Is(err, repo.ErrNotFound) {
		e.logf("task %s: note lookup for lead %s: %v", taskID, leadID, err)
	}
	return false
}

// fetchField reads the named column fresh from the lead row. Catalog
// membership doubles as the whitelist guarding column interpolation in the
// query layer, so unknown fields never reach it. Store failures read as
// "value missing" (fail closed).
func (e Engine) fetchField(ctx context.Context, taskID, leadID, field string) (*string, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	if !e.Config.KnownField(field) {
		return nil, fmt.Errorf("requirement references unknown field %q", field)
	}
	val, err := e.Repo.LeadFieldValue(ctx, leadID, field)
	if err != nil {
		e.logf("task %s: fetch %s for lead %s: %v", taskID, field, leadID, err)
		return nil, nil
	}
	return val, nil
}

// resolveFieldPopulated requires the named lead column to hold a value. Only
// NULL and the empty string count as unpopulated; a legitimate zero is still
// a value.
func (e Engine) resolveFieldPopulated(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	if d.LeadID == nil {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	val, err := e.fetchField(ctx, d.ID, *d.LeadID, req.Field)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if val != nil && *val != "" {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	return domain.ValidationResult{
		Message:            fmt.Sprintf("%s must be filled in before completing this task", e.Config.FieldLabel(req.Field)),
		MissingRequirement: req.Raw,
	}, nil
}

// resolveFieldValue requires the named lead column to match the declared
// allow-list. Synonyms from the config alias table widen the accept check,
// but the denial message always shows the declared list as written.
func (e Engine) resolveFieldValue(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	if d.LeadID == nil {
		return domain.ValidationResult{CanComplete: true}, nil
	}
	val, err := e.fetchField(ctx, d.ID, *d.LeadID, req.Field)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if val != nil {
		for _, allowed := range req.Allowed {
			if *val == allowed {
				return domain.ValidationResult{CanComplete: true}, nil
			}
			for _, alias := range e.Config.AliasesFor(req.Field, allowed) {
				if *val == alias {
					return domain.ValidationResult{CanComplete: true}, nil
				}
			}
		}
	}
	return domain.ValidationResult{
		Message: fmt.Sprintf("%s must be %s before completing this task",
			e.Config.FieldLabel(req.Field), strings.Join(req.Allowed, " or ")),
		MissingRequirement: req.Raw,
	}, nil
}

// resolveCompound requires every sub-requirement to pass. The first failing
// sub supplies the message and contact, while the echoed descriptor stays the
// full compound so consumers classify it as such.
func (e Engine) resolveCompound(ctx context.Context, d domain.TaskDetail, req requirement.Requirement) (domain.ValidationResult, error) {
	for _, sub := range req.Sub {
		result, err := e.evaluate(ctx, d, sub)
		if err != nil {
			return domain.ValidationResult{}, err
		}
		if !result.CanComplete {
			result.MissingRequirement = req.Raw
			return result, nil
		}
	}
	return domain.ValidationResult{CanComplete: true}, nil
}
