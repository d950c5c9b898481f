package repo

import (
	"context"
	"database/sql"
	"strings"

	"loanline/internal/domain"
)

const taskColumns = `id,lead_id,title,description,status,priority,completion_requirement,due_date,created_at,updated_at,completed_at,deleted_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var leadID, description, req, dueDate, completedAt, deletedAt sql.NullString
	var priority sql.NullInt64
	err := row.Scan(&t.ID, &leadID, &t.Title, &description, &t.Status, &priority, &req, &dueDate,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.LeadID = nullStringPtr(leadID)
	if description.Valid {
		t.Description = description.String
	}
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	t.CompletionRequirement = nullStringPtr(req)
	t.DueDate = nullStringPtr(dueDate)
	t.CompletedAt = nullStringPtr(completedAt)
	t.DeletedAt = nullStringPtr(deletedAt)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, nullableStringPtr(t.LeadID), t.Title, nullable(t.Description), t.Status,
		nullableIntPtr(t.Priority), nullableStringPtr(t.CompletionRequirement), nullableStringPtr(t.DueDate),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt), nullableStringPtr(t.DeletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET lead_id=?, title=?, description=?, status=?, priority=?, completion_requirement=?, due_date=?, updated_at=?, completed_at=?, deleted_at=? WHERE id=?`,
		nullableStringPtr(t.LeadID), t.Title, nullable(t.Description), t.Status,
		nullableIntPtr(t.Priority), nullableStringPtr(t.CompletionRequirement), nullableStringPtr(t.DueDate),
		t.UpdatedAt, nullableStringPtr(t.CompletedAt), nullableStringPtr(t.DeletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask returns a task by id. Soft-deleted tasks are not found.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND deleted_at IS NULL`, id))
}

// GetTaskDetail returns a task with its lead and agent records joined in.
// Agent resolution follows the lead's buyer_agent_id / listing_agent_id.
func (r Repo) GetTaskDetail(ctx context.Context, id string) (domain.TaskDetail, error) {
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	d := domain.TaskDetail{Task: t}
	if t.LeadID == nil {
		return d, nil
	}
	lead, err := r.GetLead(ctx, *t.LeadID)
	if err != nil {
		if err == ErrNotFound {
			return d, nil
		}
		return d, err
	}
	d.Lead = &lead
	if lead.BuyerAgentID != nil {
		if a, err := r.GetAgent(ctx, *lead.BuyerAgentID); err == nil {
			d.BuyerAgent = &a
		} else if err != ErrNotFound {
			return d, err
		}
	}
	if lead.ListingAgentID != nil {
		if a, err := r.GetAgent(ctx, *lead.ListingAgentID); err == nil {
			d.ListingAgent = &a
		} else if err != ErrNotFound {
			return d, err
		}
	}
	return d, nil
}

type TaskFilters struct {
	LeadID          string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if f.LeadID != "" {
		clauses = append(clauses, "lead_id=?")
		args = append(args, f.LeadID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
