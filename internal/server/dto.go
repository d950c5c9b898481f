package server

import (
	"loanline/internal/domain"
	"loanline/internal/engine"
)

type CreateLeadRequest struct {
	ID             *string `json:"id,omitempty"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Phone          *string `json:"phone,omitempty"`
	Email          *string `json:"email,omitempty"`
	BuyerAgentID   *string `json:"buyer_agent_id,omitempty"`
	ListingAgentID *string `json:"listing_agent_id,omitempty"`
}

type UpdateLeadRequest struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Email          *string `json:"email,omitempty"`
	BuyerAgentID   *string `json:"buyer_agent_id,omitempty"`
	ListingAgentID *string `json:"listing_agent_id,omitempty"`
}

type SetLeadFieldRequest struct {
	Value *string `json:"value"`
}

type CreateAgentRequest struct {
	Role      string  `json:"role" enum:"buyer,listing"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type CreateTaskRequest struct {
	ID                    *string `json:"id,omitempty"`
	LeadID                *string `json:"lead_id,omitempty"`
	Title                 string  `json:"title"`
	Description           *string `json:"description,omitempty"`
	Priority              *int    `json:"priority,omitempty"`
	CompletionRequirement *string `json:"completion_requirement,omitempty"`
	DueDate               *string `json:"due_date,omitempty"`
}

type UpdateTaskRequest struct {
	Title                 *string `json:"title,omitempty"`
	Description           *string `json:"description,omitempty"`
	Priority              *int    `json:"priority,omitempty"`
	CompletionRequirement *string `json:"completion_requirement,omitempty"`
	DueDate               *string `json:"due_date,omitempty"`
	Cancel                bool    `json:"cancel,omitempty"`
	Reopen                bool    `json:"reopen,omitempty"`
}

type LogCallRequest struct {
	LeadID  *string `json:"lead_id,omitempty"`
	AgentID *string `json:"agent_id,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

type AddNoteRequest struct {
	Body string `json:"body"`
}

type CreateAPIKeyRequest struct {
	ActorID string  `json:"actor_id"`
	Name    *string `json:"name,omitempty"`
}

type LeadResponse struct {
	ID             string  `json:"id"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Phone          string  `json:"phone,omitempty"`
	Email          string  `json:"email,omitempty"`
	BuyerAgentID   *string `json:"buyer_agent_id,omitempty"`
	ListingAgentID *string `json:"listing_agent_id,omitempty"`
	LoanStatus     *string `json:"loan_status,omitempty"`
	PackageStatus  *string `json:"package_status,omitempty"`
	ApprDateTime   *string `json:"appr_date_time,omitempty"`
	LockDate       *string `json:"lock_date,omitempty"`
	LoanAmount     *string `json:"loan_amount,omitempty"`
	ClosingDate    *string `json:"closing_date,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type AgentResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

type TaskResponse struct {
	ID                    string  `json:"id"`
	LeadID                *string `json:"lead_id,omitempty"`
	Title                 string  `json:"title"`
	Description           string  `json:"description,omitempty"`
	Status                string  `json:"status"`
	Priority              *int    `json:"priority,omitempty"`
	CompletionRequirement *string `json:"completion_requirement,omitempty"`
	DueDate               *string `json:"due_date,omitempty"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
	CompletedAt           *string `json:"completed_at,omitempty"`
}

type TaskDetailResponse struct {
	TaskResponse
	Lead         *LeadResponse  `json:"lead,omitempty"`
	BuyerAgent   *AgentResponse `json:"buyer_agent,omitempty"`
	ListingAgent *AgentResponse `json:"listing_agent,omitempty"`
}

type CallResponse struct {
	ID      string  `json:"id"`
	LeadID  *string `json:"lead_id,omitempty"`
	AgentID *string `json:"agent_id,omitempty"`
	ActorID string  `json:"actor_id"`
	Summary string  `json:"summary,omitempty"`
	TS      string  `json:"ts"`
}

type NoteResponse struct {
	ID      string `json:"id"`
	LeadID  string `json:"lead_id"`
	ActorID string `json:"actor_id"`
	Body    string `json:"body"`
	TS      string `json:"ts"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// TaskRequirementResponse reports a task's gate and its current verdict
// without mutating anything.
type TaskRequirementResponse struct {
	Requirement *string                 `json:"requirement,omitempty"`
	Validation  domain.ValidationResult `json:"validation"`
	Remediation *engine.RemediationPlan `json:"remediation,omitempty"`
}

type CompleteTaskResponse struct {
	Task       TaskResponse            `json:"task"`
	Validation domain.ValidationResult `json:"validation"`
}

type paginatedLeads struct {
	Items      []LeadResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func leadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:             l.ID,
		FirstName:      l.FirstName,
		LastName:       l.LastName,
		Phone:          l.Phone,
		Email:          l.Email,
		BuyerAgentID:   l.BuyerAgentID,
		ListingAgentID: l.ListingAgentID,
		LoanStatus:     l.LoanStatus,
		PackageStatus:  l.PackageStatus,
		ApprDateTime:   l.ApprDateTime,
		LockDate:       l.LockDate,
		LoanAmount:     l.LoanAmount,
		ClosingDate:    l.ClosingDate,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:        a.ID,
		Role:      a.Role,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                    t.ID,
		LeadID:                t.LeadID,
		Title:                 t.Title,
		Description:           t.Description,
		Status:                t.Status,
		Priority:              t.Priority,
		CompletionRequirement: t.CompletionRequirement,
		DueDate:               t.DueDate,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		CompletedAt:           t.CompletedAt,
	}
}

func taskDetailResponse(d domain.TaskDetail) TaskDetailResponse {
	resp := TaskDetailResponse{TaskResponse: taskResponse(d.Task)}
	if d.Lead != nil {
		lr := leadResponse(*d.Lead)
		resp.Lead = &lr
	}
	if d.BuyerAgent != nil {
		ar := agentResponse(*d.BuyerAgent)
		resp.BuyerAgent = &ar
	}
	if d.ListingAgent != nil {
		ar := agentResponse(*d.ListingAgent)
		resp.ListingAgent = &ar
	}
	return resp
}

func callResponse(c domain.CallLog) CallResponse {
	return CallResponse{ID: c.ID, LeadID: c.LeadID, AgentID: c.AgentID, ActorID: c.ActorID, Summary: c.Summary, TS: c.TS}
}

func noteResponse(n domain.Note) NoteResponse {
	return NoteResponse{ID: n.ID, LeadID: n.LeadID, ActorID: n.ActorID, Body: n.Body, TS: n.TS}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{ID: e.ID, TS: e.TS, Type: e.Type, EntityKind: e.EntityKind, EntityID: e.EntityID, ActorID: e.ActorID, Payload: e.Payload}
}

func mapLeads(items []domain.Lead) []LeadResponse {
	res := make([]LeadResponse, 0, len(items))
	for _, l := range items {
		res = append(res, leadResponse(l))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapAgents(items []domain.Agent) []AgentResponse {
	res := make([]AgentResponse, 0, len(items))
	for _, a := range items {
		res = append(res, agentResponse(a))
	}
	return res
}

func mapCalls(items []domain.CallLog) []CallResponse {
	res := make([]CallResponse, 0, len(items))
	for _, c := range items {
		res = append(res, callResponse(c))
	}
	return res
}

func mapNotes(items []domain.Note) []NoteResponse {
	res := make([]NoteResponse, 0, len(items))
	for _, n := range items {
		res = append(res, noteResponse(n))
	}
	return res
}

func domainAgent(req CreateAgentRequest) domain.Agent {
	return domain.Agent{
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     stringOrEmpty(req.Phone),
		Email:     stringOrEmpty(req.Email),
	}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
