package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"loanline/internal/config"
	"loanline/internal/domain"
	"loanline/internal/events"
	"loanline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: log.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// LeadCreateOptions are parameters for creating a lead.
type LeadCreateOptions struct {
	ID             string
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	BuyerAgentID   string
	ListingAgentID string
	ActorID        string
}

func (e Engine) CreateLead(ctx context.Context, opts LeadCreateOptions) (domain.Lead, error) {
	if opts.FirstName == "" && opts.LastName == "" {
		return domain.Lead{}, errors.New("name is required")
	}
	if opts.BuyerAgentID != "" {
		if err := e.ensureAgentRole(ctx, opts.BuyerAgentID, "buyer"); err != nil {
			return domain.Lead{}, err
		}
	}
	if opts.ListingAgentID != "" {
		if err := e.ensureAgentRole(ctx, opts.ListingAgentID, "listing"); err != nil {
			return domain.Lead{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	l := domain.Lead{
		ID:             id,
		FirstName:      opts.FirstName,
		LastName:       opts.LastName,
		Phone:          opts.Phone,
		Email:          opts.Email,
		BuyerAgentID:   optionalString(opts.BuyerAgentID),
		ListingAgentID: optionalString(opts.ListingAgentID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertLead(ctx, tx, l); err != nil {
		return domain.Lead{}, err
	}
	if err := e.Events.Append(ctx, tx, "lead.created", "lead", l.ID, opts.ActorID, events.EventPayload{"name": l.Name()}); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lead{}, err
	}
	return l, nil
}

// LeadUpdateOptions encapsulates allowed lead updates. Pointer fields are
// applied only when non-nil; an empty string clears the column.
type LeadUpdateOptions struct {
	ID             string
	FirstName      *string
	LastName       *string
	Phone          *string
	Email          *string
	BuyerAgentID   *string
	ListingAgentID *string
	ActorID        string
}

func (e Engine) UpdateLead(ctx context.Context, opts LeadUpdateOptions) (domain.Lead, error) {
	l, err := e.Repo.GetLead(ctx, opts.ID)
	if err != nil {
		return l, err
	}
	if opts.FirstName != nil {
		l.FirstName = *opts.FirstName
	}
	if opts.LastName != nil {
		l.LastName = *opts.LastName
	}
	if l.FirstName == "" && l.LastName == "" {
		return l, errors.New("name is required")
	}
	if opts.Phone != nil {
		l.Phone = *opts.Phone
	}
	if opts.Email != nil {
		l.Email = *opts.Email
	}
	if opts.BuyerAgentID != nil {
		if *opts.BuyerAgentID == "" {
			l.BuyerAgentID = nil
		} else {
			if err := e.ensureAgentRole(ctx, *opts.BuyerAgentID, "buyer"); err != nil {
				return l, err
			}
			l.BuyerAgentID = opts.BuyerAgentID
		}
	}
	if opts.ListingAgentID != nil {
		if *opts.ListingAgentID == "" {
			l.ListingAgentID = nil
		} else {
			if err := e.ensureAgentRole(ctx, *opts.ListingAgentID, "listing"); err != nil {
				return l, err
			}
			l.ListingAgentID = opts.ListingAgentID
		}
	}
	l.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return l, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateLead(ctx, tx, l); err != nil {
		return l, err
	}
	if err := e.Events.Append(ctx, tx, "lead.updated", "lead", l.ID, opts.ActorID, events.EventPayload{"name": l.Name()}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return l, nil
}

func (e Engine) ensureAgentRole(ctx context.Context, agentID, role string) error {
	a, err := e.Repo.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}
	if a.Role != role {
		return fmt.Errorf("agent %s has role %s, expected %s", agentID, a.Role, role)
	}
	return nil
}

// SetLeadField writes a single pipeline column on a lead. Only columns
// declared in the field catalog may be written; value nil clears the column.
func (e Engine) SetLeadField(ctx context.Context, leadID, field string, value *string, actorID string) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if !e.Config.KnownField(field) {
		return fmt.Errorf("field %s not in catalog", field)
	}
	if _, err := e.Repo.GetLead(ctx, leadID); err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetLeadField(ctx, tx, leadID, field, value, now); err != nil {
		return err
	}
	payload := events.EventPayload{"field": field}
	if value != nil {
		payload["value"] = *value
	}
	if err := e.Events.Append(ctx, tx, "lead.field.updated", "lead", leadID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateAgent(ctx context.Context, a domain.Agent, actorID string) (domain.Agent, error) {
	if a.Role != "buyer" && a.Role != "listing" {
		return a, fmt.Errorf("invalid agent role %q", a.Role)
	}
	if a.FirstName == "" && a.LastName == "" {
		return a, errors.New("name is required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAgent(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "agent.created", "agent", a.ID, actorID, events.EventPayload{"role": a.Role, "name": a.Name()}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// LogCall records a call against a lead, an agent, or both.
func (e Engine) LogCall(ctx context.Context, leadID, agentID, summary, actorID string) (domain.CallLog, error) {
	if leadID == "" && agentID == "" {
		return domain.CallLog{}, errors.New("lead or agent is required")
	}
	if leadID != "" {
		if _, err := e.Repo.GetLead(ctx, leadID); err != nil {
			return domain.CallLog{}, fmt.Errorf("lead %s: %w", leadID, err)
		}
	}
	if agentID != "" {
		if _, err := e.Repo.GetAgent(ctx, agentID); err != nil {
			return domain.CallLog{}, fmt.Errorf("agent %s: %w", agentID, err)
		}
	}
	c := domain.CallLog{
		ID:      uuid.New().String(),
		LeadID:  optionalString(leadID),
		AgentID: optionalString(agentID),
		ActorID: actorID,
		Summary: summary,
		TS:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCallLog(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "call.logged", "call", c.ID, actorID, events.EventPayload{
		"lead_id":  leadID,
		"agent_id": agentID,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// AddNote records a note on a lead.
func (e Engine) AddNote(ctx context.Context, leadID, body, actorID string) (domain.Note, error) {
	if leadID == "" {
		return domain.Note{}, errors.New("lead is required")
	}
	if body == "" {
		return domain.Note{}, errors.New("body is required")
	}
	if _, err := e.Repo.GetLead(ctx, leadID); err != nil {
		return domain.Note{}, fmt.Errorf("lead %s: %w", leadID, err)
	}
	n := domain.Note{
		ID:      uuid.New().String(),
		LeadID:  leadID,
		ActorID: actorID,
		Body:    body,
		TS:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return n, err
	}
	if err := e.Events.Append(ctx, tx, "note.added", "note", n.ID, actorID, events.EventPayload{"lead_id": leadID}); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// MintAPIKey creates an API key and returns the plaintext once; only the hash
// is stored.
func (e Engine) MintAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor is required")
	}
	plaintext := uuid.New().String() + uuid.New().String()
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return key, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return key, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "apikey", key.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return key, "", err
	}
	if err := tx.Commit(); err != nil {
		return key, "", err
	}
	return key, plaintext, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
