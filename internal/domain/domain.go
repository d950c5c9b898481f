package domain

// Lead is a borrower record moving through the origination pipeline.
// Pipeline columns (loan_status, package_status, appr_date_time, ...) are the
// fields completion requirements may gate on.
type Lead struct {
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
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Name returns the lead's display name.
func (l Lead) Name() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

type Agent struct {
	ID        string `json:"id"`
	Role      string `json:"role" enum:"buyer,listing"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func (a Agent) Name() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

type Task struct {
	ID                    string  `json:"id"`
	LeadID                *string `json:"lead_id,omitempty"`
	Title                 string  `json:"title"`
	Description           string  `json:"description,omitempty"`
	Status                string  `json:"status" enum:"open,complete,canceled"`
	Priority              *int    `json:"priority,omitempty"`
	CompletionRequirement *string `json:"completion_requirement,omitempty"`
	DueDate               *string `json:"due_date,omitempty" format:"date-time"`
	CreatedAt             string  `json:"created_at" format:"date-time"`
	UpdatedAt             string  `json:"updated_at" format:"date-time"`
	CompletedAt           *string `json:"completed_at,omitempty" format:"date-time"`
	DeletedAt             *string `json:"deleted_at,omitempty" format:"date-time"`
}

// TaskDetail is a task with its joined lead and agent records, the shape the
// validation engine consumes.
type TaskDetail struct {
	Task
	Lead         *Lead  `json:"lead,omitempty"`
	BuyerAgent   *Agent `json:"buyer_agent,omitempty"`
	ListingAgent *Agent `json:"listing_agent,omitempty"`
}

type CallLog struct {
	ID      string  `json:"id"`
	LeadID  *string `json:"lead_id,omitempty"`
	AgentID *string `json:"agent_id,omitempty"`
	ActorID string  `json:"actor_id"`
	Summary string  `json:"summary,omitempty"`
	TS      string  `json:"ts" format:"date-time"`
}

type Note struct {
	ID      string `json:"id"`
	LeadID  string `json:"lead_id"`
	ActorID string `json:"actor_id"`
	Body    string `json:"body"`
	TS      string `json:"ts" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ContactInfo identifies the party to reach to clear a blocked requirement.
type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Type  string `json:"type" enum:"buyer_agent,listing_agent,borrower"`
	ID    string `json:"id,omitempty"`
}

// ValidationResult is the engine's verdict on a completion attempt. Transient;
// never persisted.
type ValidationResult struct {
	CanComplete        bool         `json:"can_complete"`
	Message            string       `json:"message,omitempty"`
	MissingRequirement string       `json:"missing_requirement,omitempty"`
	ContactInfo        *ContactInfo `json:"contact_info,omitempty"`
}
