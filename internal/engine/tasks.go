package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loanline/internal/domain"
	"loanline/internal/events"
	"loanline/internal/requirement"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID                    string
	LeadID                string
	Title                 string
	Description           string
	Priority              *int
	CompletionRequirement string
	DueDate               string
	ActorID               string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.LeadID != "" {
		if _, err := e.Repo.GetLead(ctx, opts.LeadID); err != nil {
			return domain.Task{}, fmt.Errorf("lead %s: %w", opts.LeadID, err)
		}
	}
	if err := e.checkRequirement(opts.CompletionRequirement); err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:                    id,
		LeadID:                optionalString(opts.LeadID),
		Title:                 opts.Title,
		Description:           opts.Description,
		Status:                "open",
		Priority:              opts.Priority,
		CompletionRequirement: optionalString(opts.CompletionRequirement),
		DueDate:               optionalString(opts.DueDate),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
		"title":  t.Title,
		"status": t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// checkRequirement rejects malformed descriptors at write time. Descriptors
// with an unrecognized kind are stored as-is and blocked at validation time,
// so automation that writes new kinds ahead of an upgrade does not lose data.
func (e Engine) checkRequirement(desc string) error {
	_, err := requirement.Parse(desc)
	if err == nil {
		return nil
	}
	if errors.Is(err, requirement.ErrUnknownKind) {
		e.logf("task requirement %q has unrecognized kind, storing anyway", desc)
		return nil
	}
	return err
}

// TaskUpdateOptions encapsulates allowed task updates. Pointer fields are
// applied only when non-nil; an empty string clears the column.
type TaskUpdateOptions struct {
	ID                    string
	Title                 *string
	Description           *string
	Priority              *int
	CompletionRequirement *string
	DueDate               *string
	Cancel                bool
	Reopen                bool
	ActorID               string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	if opts.Title != nil {
		if *opts.Title == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		t.Priority = opts.Priority
	}
	if opts.CompletionRequirement != nil {
		if err := e.checkRequirement(*opts.CompletionRequirement); err != nil {
			return t, err
		}
		if *opts.CompletionRequirement == "" {
			t.CompletionRequirement = nil
		} else {
			t.CompletionRequirement = opts.CompletionRequirement
		}
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = opts.DueDate
		}
	}
	if opts.Cancel && opts.Reopen {
		return t, errors.New("cancel and reopen are mutually exclusive")
	}
	if opts.Cancel {
		if t.Status == "complete" {
			return t, errors.New("completed task cannot be canceled")
		}
		t.Status = "canceled"
	}
	if opts.Reopen {
		t.Status = "open"
		t.CompletedAt = nil
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTask soft-deletes a task. The row stays for activity history.
func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t.DeletedAt = &now
	t.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", t.ID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteTask validates the task's completion requirement and, when the
// gate passes, marks the task complete. A blocked attempt returns the
// denial result with a nil error; callers branch on result.CanComplete.
func (e Engine) CompleteTask(ctx context.Context, taskID, actorID string) (domain.Task, domain.ValidationResult, error) {
	d, err := e.Repo.GetTaskDetail(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.ValidationResult{}, err
	}
	if d.Status == "complete" {
		return d.Task, domain.ValidationResult{CanComplete: true}, nil
	}
	if d.Status == "canceled" {
		return d.Task, domain.ValidationResult{}, errors.New("canceled task cannot be completed")
	}
	result, err := e.ValidateTaskCompletion(ctx, d)
	if err != nil {
		return d.Task, result, err
	}
	if !result.CanComplete {
		// Record the denied attempt so operators and webhooks see it. The
		// validation itself stays read-only; this is the lifecycle op writing.
		if err := e.recordBlocked(ctx, d.Task, actorID, result); err != nil {
			e.logf("task %s: record blocked attempt: %v", d.ID, err)
		}
		return d.Task, result, nil
	}
	t, err := e.markComplete(ctx, d.Task, actorID, "task.completed")
	return t, result, err
}

func (e Engine) recordBlocked(ctx context.Context, t domain.Task, actorID string, result domain.ValidationResult) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "task.completion_blocked", "task", t.ID, actorID, events.EventPayload{
		"missing_requirement": result.MissingRequirement,
		"message":             result.Message,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AutoCompleteTask completes a task on behalf of automation, bypassing the
// requirement gate. This is the only path that completes auto_complete_only
// tasks.
func (e Engine) AutoCompleteTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if t.Status == "complete" {
		return t, nil
	}
	if t.Status == "canceled" {
		return t, errors.New("canceled task cannot be completed")
	}
	return e.markComplete(ctx, t, actorID, "task.auto_completed")
}

func (e Engine) markComplete(ctx context.Context, t domain.Task, actorID, evtType string) (domain.Task, error) {
	now := e.now().UTC().Format(time.RFC3339)
	t.Status = "complete"
	t.CompletedAt = &now
	t.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "task", t.ID, actorID, events.EventPayload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}
