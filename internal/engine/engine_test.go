package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"loanline/internal/config"
	"loanline/internal/db"
	"loanline/internal/domain"
	"loanline/internal/engine"
	"loanline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func strPtr(s string) *string { return &s }

func (env testEnv) mustLead(t *testing.T, opts engine.LeadCreateOptions) domain.Lead {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	l, err := env.Engine.CreateLead(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return l
}

func (env testEnv) mustTask(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestNoRequirementPassesWithoutStoreAccess(t *testing.T) {
	env := newTestEnv(t)
	// A closed connection makes any query fail loudly, proving the fast
	// path performs no I/O.
	env.Engine.DB.Close()
	for _, req := range []*string{nil, strPtr(""), strPtr("none")} {
		d := domain.TaskDetail{Task: domain.Task{ID: "t1", LeadID: strPtr("L1"), CompletionRequirement: req}}
		result, err := env.Engine.ValidateTaskCompletion(env.Ctx, d)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if !result.CanComplete {
			t.Fatalf("expected pass for requirement %v", req)
		}
	}
}

func TestAgentCallVacuousWithoutAgent(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Call buyer agent", CompletionRequirement: "log_call_buyer_agent"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.CanComplete {
		t.Fatalf("expected vacuous pass, got %+v", result)
	}
}

func TestAgentCallGate(t *testing.T) {
	env := newTestEnv(t)
	agent, err := env.Engine.CreateAgent(env.Ctx, domain.Agent{Role: "buyer", FirstName: "Sam", LastName: "Ortiz", Phone: "555-0101"}, "tester")
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed", BuyerAgentID: agent.ID})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Call buyer agent", CompletionRequirement: "log_call_buyer_agent"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if result.MissingRequirement != "log_call_buyer_agent" {
		t.Fatalf("missing requirement = %q", result.MissingRequirement)
	}
	if result.ContactInfo == nil || result.ContactInfo.Type != "buyer_agent" {
		t.Fatalf("contact = %+v", result.ContactInfo)
	}
	if result.ContactInfo.Name != "Sam Ortiz" || result.ContactInfo.Phone != "555-0101" || result.ContactInfo.ID != agent.ID {
		t.Fatalf("contact = %+v", result.ContactInfo)
	}

	if _, err := env.Engine.LogCall(env.Ctx, "", agent.ID, "left voicemail", "tester"); err != nil {
		t.Fatalf("log call: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.CanComplete {
		t.Fatalf("expected pass after call, got %+v", result)
	}

	completed, result, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil || !result.CanComplete {
		t.Fatalf("complete: %v %+v", err, result)
	}
	if completed.Status != "complete" || completed.CompletedAt == nil {
		t.Fatalf("task = %+v", completed)
	}
}

func TestBorrowerNoteGate(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{ID: "L1", FirstName: "Dana", LastName: "Reed"})

	// Joined relations absent: the contact falls back to the role label.
	d := domain.TaskDetail{Task: domain.Task{ID: "t1", LeadID: strPtr("L1"), CompletionRequirement: strPtr("log_note_borrower")}}
	result, err := env.Engine.ValidateTaskCompletion(env.Ctx, d)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if result.Message != "You must add a note for the borrower before completing this task" {
		t.Fatalf("message = %q", result.Message)
	}
	if result.MissingRequirement != "log_note_borrower" {
		t.Fatalf("missing requirement = %q", result.MissingRequirement)
	}
	if result.ContactInfo == nil || result.ContactInfo.Type != "borrower" || result.ContactInfo.ID != "L1" || result.ContactInfo.Name != "Borrower" {
		t.Fatalf("contact = %+v", result.ContactInfo)
	}

	if _, err := env.Engine.AddNote(env.Ctx, lead.ID, "spoke with borrower", "tester"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	result, err = env.Engine.ValidateTaskCompletion(env.Ctx, d)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.CanComplete {
		t.Fatalf("expected pass after note, got %+v", result)
	}
}

func TestBorrowerContactUsesLeadName(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed", Phone: "555-0177"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Call borrower", CompletionRequirement: "log_call_borrower"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if result.ContactInfo == nil || result.ContactInfo.Name != "Dana Reed" || result.ContactInfo.Phone != "555-0177" {
		t.Fatalf("contact = %+v", result.ContactInfo)
	}
}

func TestAnyActivityGate(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Touch base", CompletionRequirement: "log_any_activity"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || result.CanComplete {
		t.Fatalf("expected blocked: %v %+v", err, result)
	}
	// A call clears the gate just as well as a note.
	if _, err := env.Engine.LogCall(env.Ctx, lead.ID, "", "checked in", "tester"); err != nil {
		t.Fatalf("log call: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || !result.CanComplete {
		t.Fatalf("expected pass after call: %v %+v", err, result)
	}
}

func TestLoanStatusAlias(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Submit", CompletionRequirement: "field_value:loan_status=SUB"})

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "loan_status", strPtr("SUV"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.CanComplete {
		t.Fatalf("expected alias acceptance, got %+v", result)
	}

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "loan_status", strPtr("Pending"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	// The denial shows the declared list, never the expanded synonyms.
	if result.Message != "Loan Status must be SUB before completing this task" {
		t.Fatalf("message = %q", result.Message)
	}
	if strings.Contains(result.Message, "SUV") {
		t.Fatalf("alias leaked into message: %q", result.Message)
	}
}

func TestPackageStatusAllowList(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{ID: "L2", FirstName: "Ben", LastName: "Cho"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Package", CompletionRequirement: "field_value:package_status=Complete,Waived"})

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "package_status", strPtr("Pending"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if result.Message != "Package Status must be Complete or Waived before completing this task" {
		t.Fatalf("message = %q", result.Message)
	}

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "package_status", strPtr("Waived"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || !result.CanComplete {
		t.Fatalf("expected pass: %v %+v", err, result)
	}
}

func TestFieldPopulated(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Schedule appraisal", CompletionRequirement: "field_populated:appr_date_time"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if !strings.Contains(result.Message, "Appraisal Date/Time") {
		t.Fatalf("message = %q", result.Message)
	}

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "appr_date_time", strPtr("2026-02-01T10:00:00Z"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || !result.CanComplete {
		t.Fatalf("expected pass: %v %+v", err, result)
	}
}

func TestFieldPopulatedZeroCountsAsSet(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Amount", CompletionRequirement: "field_populated:loan_amount"})

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "loan_amount", strPtr("0"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || !result.CanComplete {
		t.Fatalf("a zero value is still a value: %v %+v", err, result)
	}
}

func TestValidationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Note", CompletionRequirement: "log_note_borrower"})

	_, first, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	_, second, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if first.CanComplete != second.CanComplete || first.Message != second.Message || first.MissingRequirement != second.MissingRequirement {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
}

func TestUnknownRequirementFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Future gate", CompletionRequirement: "verify_income_docs"})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("unknown requirement must block, got %+v", result)
	}
	if result.MissingRequirement != "verify_income_docs" {
		t.Fatalf("missing requirement = %q", result.MissingRequirement)
	}

	updated, result, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.CanComplete || updated.Status == "complete" {
		t.Fatalf("completion must stay blocked: %+v %+v", updated, result)
	}
}

func TestAutoCompleteOnly(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "System task", CompletionRequirement: "auto_complete_only"})

	_, result, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("manual completion must be denied, got %+v", result)
	}

	done, err := env.Engine.AutoCompleteTask(env.Ctx, task.ID, "automation")
	if err != nil {
		t.Fatalf("auto complete: %v", err)
	}
	if done.Status != "complete" {
		t.Fatalf("task = %+v", done)
	}
}

func TestCompoundRequirement(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustLead(t, engine.LeadCreateOptions{FirstName: "Dana", LastName: "Reed"})
	desc := "compound:log_note_borrower;field_populated:appr_date_time"
	task := env.mustTask(t, engine.TaskCreateOptions{LeadID: lead.ID, Title: "Prep file", CompletionRequirement: desc})

	_, result, err := env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.CanComplete {
		t.Fatalf("expected blocked, got %+v", result)
	}
	if result.MissingRequirement != desc {
		t.Fatalf("missing requirement = %q", result.MissingRequirement)
	}
	if result.Message != "You must add a note for the borrower before completing this task" {
		t.Fatalf("message = %q", result.Message)
	}

	if _, err := env.Engine.AddNote(env.Ctx, lead.ID, "reviewed file", "tester"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || result.CanComplete {
		t.Fatalf("second sub-requirement should still block: %v %+v", err, result)
	}
	if !strings.Contains(result.Message, "Appraisal Date/Time") {
		t.Fatalf("message = %q", result.Message)
	}

	if err := env.Engine.SetLeadField(env.Ctx, lead.ID, "appr_date_time", strPtr("2026-02-01T10:00:00Z"), "tester"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	_, result, err = env.Engine.ValidateTask(env.Ctx, task.ID)
	if err != nil || !result.CanComplete {
		t.Fatalf("expected pass: %v %+v", err, result)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustTask(t, engine.TaskCreateOptions{Title: "Standalone"})

	done, result, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil || !result.CanComplete || done.Status != "complete" {
		t.Fatalf("complete: %v %+v %+v", err, result, done)
	}
	// Completing a completed task is a no-op.
	again, result, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil || !result.CanComplete || again.CompletedAt == nil {
		t.Fatalf("re-complete: %v %+v", err, result)
	}

	other := env.mustTask(t, engine.TaskCreateOptions{Title: "Doomed"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: other.ID, Cancel: true, ActorID: "tester"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, other.ID, "tester"); err == nil {
		t.Fatalf("expected error completing canceled task")
	}

	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); err == nil {
		t.Fatalf("soft-deleted task should not be found")
	}
}

func TestMalformedRequirementRejectedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Bad", CompletionRequirement: "field_value:loan_status=", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected error for empty allow-list")
	}
}
