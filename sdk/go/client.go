package loanlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Loanline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Lead represents the API lead model (partial).
type Lead struct {
	ID            string  `json:"id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Phone         string  `json:"phone,omitempty"`
	LoanStatus    *string `json:"loan_status,omitempty"`
	PackageStatus *string `json:"package_status,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID                    string  `json:"id"`
	LeadID                *string `json:"lead_id,omitempty"`
	Title                 string  `json:"title"`
	Status                string  `json:"status"`
	CompletionRequirement *string `json:"completion_requirement,omitempty"`
	CompletedAt           *string `json:"completed_at,omitempty"`
}

// Contact identifies the party to reach to clear a blocked requirement.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
}

// Validation is the server's verdict on whether a task can be completed.
type Validation struct {
	CanComplete        bool     `json:"can_complete"`
	Message            string   `json:"message,omitempty"`
	MissingRequirement string   `json:"missing_requirement,omitempty"`
	ContactInfo        *Contact `json:"contact_info,omitempty"`
}

// Remediation tells a consumer how to present a blocked completion.
type Remediation struct {
	Kind    string   `json:"kind"`
	Title   string   `json:"title"`
	Detail  string   `json:"detail,omitempty"`
	Actions []string `json:"actions"`
	Contact *Contact `json:"contact,omitempty"`
}

// RequirementStatus is the read-only requirement check for a task.
type RequirementStatus struct {
	Requirement *string      `json:"requirement,omitempty"`
	Validation  Validation   `json:"validation"`
	Remediation *Remediation `json:"remediation,omitempty"`
}

// CompletedTask is the response to a successful completion.
type CompletedTask struct {
	Task       Task       `json:"task"`
	Validation Validation `json:"validation"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. For blocked completions the decoded
// envelope carries the validation verdict and remediation plan.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// CompletionBlockedError is returned when the server denies a completion
// because the task's requirement is unmet.
type CompletionBlockedError struct {
	APIError
	Validation  Validation   `json:"validation"`
	Remediation *Remediation `json:"remediation,omitempty"`
}

// CreateLead creates a lead.
func (c *Client) CreateLead(ctx context.Context, firstName, lastName, phone string) (Lead, error) {
	body := map[string]any{
		"first_name": firstName,
		"last_name":  lastName,
	}
	if phone != "" {
		body["phone"] = phone
	}
	var resp Lead
	err := c.do(ctx, http.MethodPost, "v0/leads", body, &resp)
	return resp, err
}

// GetLead fetches a lead by id.
func (c *Client) GetLead(ctx context.Context, id string) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodGet, "v0/leads/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetLeadField writes one pipeline field on a lead. A nil value clears it.
func (c *Client) SetLeadField(ctx context.Context, leadID, field string, value *string) (Lead, error) {
	var resp Lead
	endpoint := fmt.Sprintf("v0/leads/%s/fields/%s", url.PathEscape(leadID), url.PathEscape(field))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"value": value}, &resp)
	return resp, err
}

// CreateTask creates a task, optionally bound to a lead and gated by a
// completion requirement descriptor.
func (c *Client) CreateTask(ctx context.Context, leadID, title, requirement string) (Task, error) {
	body := map[string]any{"title": title}
	if leadID != "" {
		body["lead_id"] = leadID
	}
	if requirement != "" {
		body["completion_requirement"] = requirement
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// CompleteTask attempts to complete a task. A denial is returned as a
// *CompletionBlockedError carrying the message, missing requirement, and
// remediation plan.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (CompletedTask, error) {
	var resp CompletedTask
	endpoint := fmt.Sprintf("v0/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Requirement checks a task's completion requirement without completing it.
func (c *Client) Requirement(ctx context.Context, taskID string) (RequirementStatus, error) {
	var resp RequirementStatus
	endpoint := fmt.Sprintf("v0/tasks/%s/requirement", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// LogCall logs a call against a lead and/or agent.
func (c *Client) LogCall(ctx context.Context, leadID, agentID, summary string) error {
	body := map[string]any{}
	if leadID != "" {
		body["lead_id"] = leadID
	}
	if agentID != "" {
		body["agent_id"] = agentID
	}
	if summary != "" {
		body["summary"] = summary
	}
	return c.do(ctx, http.MethodPost, "v0/calls", body, nil)
}

// AddNote records a note on a lead.
func (c *Client) AddNote(ctx context.Context, leadID, note string) error {
	endpoint := fmt.Sprintf("v0/leads/%s/notes", url.PathEscape(leadID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": note}, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Validation  Validation   `json:"validation"`
				Remediation *Remediation `json:"remediation"`
			} `json:"details"`
		} `json:"error"`
	}
	apiErr := APIError{StatusCode: status, Body: string(body)}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &apiErr
	}
	apiErr.Code = envelope.Error.Code
	apiErr.Message = envelope.Error.Message
	if envelope.Error.Code == "completion_blocked" {
		return &CompletionBlockedError{
			APIError:    apiErr,
			Validation:  envelope.Error.Details.Validation,
			Remediation: envelope.Error.Details.Remediation,
		}
	}
	return &apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
