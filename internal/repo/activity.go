package repo

import (
	"context"
	"database/sql"

	"loanline/internal/domain"
)

const callLogColumns = `id,lead_id,agent_id,actor_id,COALESCE(summary,''),ts`

func scanCallLog(row interface{ Scan(...any) error }) (domain.CallLog, error) {
	var c domain.CallLog
	var leadID, agentID sql.NullString
	err := row.Scan(&c.ID, &leadID, &agentID, &c.ActorID, &c.Summary, &c.TS)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.LeadID = nullStringPtr(leadID)
	c.AgentID = nullStringPtr(agentID)
	return c, nil
}

func (r Repo) InsertCallLog(ctx context.Context, tx *sql.Tx, c domain.CallLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO call_logs(id,lead_id,agent_id,actor_id,summary,ts) VALUES (?,?,?,?,?,?)`,
		c.ID, nullableStringPtr(c.LeadID), nullableStringPtr(c.AgentID), c.ActorID, nullable(c.Summary), c.TS)
	return err
}

// LatestCallLogByAgent returns the newest call log for an agent, or
// ErrNotFound. The validator only needs existence, so limit 1.
func (r Repo) LatestCallLogByAgent(ctx context.Context, agentID string) (domain.CallLog, error) {
	return scanCallLog(r.DB.QueryRowContext(ctx,
		`SELECT `+callLogColumns+` FROM call_logs WHERE agent_id=? ORDER BY ts DESC, id DESC LIMIT 1`, agentID))
}

// LatestCallLogByLead returns the newest call log for a lead, or ErrNotFound.
func (r Repo) LatestCallLogByLead(ctx context.Context, leadID string) (domain.CallLog, error) {
	return scanCallLog(r.DB.QueryRowContext(ctx,
		`SELECT `+callLogColumns+` FROM call_logs WHERE lead_id=? ORDER BY ts DESC, id DESC LIMIT 1`, leadID))
}

func (r Repo) ListCallLogs(ctx context.Context, leadID string, limit int) ([]domain.CallLog, error) {
	query := `SELECT ` + callLogColumns + ` FROM call_logs WHERE lead_id=? ORDER BY ts DESC, id DESC`
	args := []any{leadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CallLog
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,lead_id,actor_id,body,ts) VALUES (?,?,?,?,?)`,
		n.ID, n.LeadID, n.ActorID, n.Body, n.TS)
	return err
}

// LatestNoteByLead returns the newest note for a lead, or ErrNotFound.
func (r Repo) LatestNoteByLead(ctx context.Context, leadID string) (domain.Note, error) {
	var n domain.Note
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,lead_id,actor_id,body,ts FROM notes WHERE lead_id=? ORDER BY ts DESC, id DESC LIMIT 1`, leadID).
		Scan(&n.ID, &n.LeadID, &n.ActorID, &n.Body, &n.TS)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) ListNotes(ctx context.Context, leadID string, limit int) ([]domain.Note, error) {
	query := `SELECT id,lead_id,actor_id,body,ts FROM notes WHERE lead_id=? ORDER BY ts DESC, id DESC`
	args := []any{leadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.LeadID, &n.ActorID, &n.Body, &n.TS); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
