package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"loanline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const leadColumns = `id,first_name,last_name,COALESCE(phone,''),COALESCE(email,''),buyer_agent_id,listing_agent_id,loan_status,package_status,appr_date_time,lock_date,loan_amount,closing_date,created_at,updated_at`

func scanLead(row interface{ Scan(...any) error }) (domain.Lead, error) {
	var l domain.Lead
	var buyerAgent, listingAgent, loanStatus, packageStatus, appr, lock, amount, closing sql.NullString
	err := row.Scan(&l.ID, &l.FirstName, &l.LastName, &l.Phone, &l.Email,
		&buyerAgent, &listingAgent, &loanStatus, &packageStatus, &appr, &lock, &amount, &closing,
		&l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.BuyerAgentID = nullStringPtr(buyerAgent)
	l.ListingAgentID = nullStringPtr(listingAgent)
	l.LoanStatus = nullStringPtr(loanStatus)
	l.PackageStatus = nullStringPtr(packageStatus)
	l.ApprDateTime = nullStringPtr(appr)
	l.LockDate = nullStringPtr(lock)
	l.LoanAmount = nullStringPtr(amount)
	l.ClosingDate = nullStringPtr(closing)
	return l, nil
}

func (r Repo) InsertLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leads(id,first_name,last_name,phone,email,buyer_agent_id,listing_agent_id,loan_status,package_status,appr_date_time,lock_date,loan_amount,closing_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.FirstName, l.LastName, nullable(l.Phone), nullable(l.Email),
		nullableStringPtr(l.BuyerAgentID), nullableStringPtr(l.ListingAgentID),
		nullableStringPtr(l.LoanStatus), nullableStringPtr(l.PackageStatus), nullableStringPtr(l.ApprDateTime),
		nullableStringPtr(l.LockDate), nullableStringPtr(l.LoanAmount), nullableStringPtr(l.ClosingDate),
		l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) UpdateLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	res, err := tx.ExecContext(ctx, `UPDATE leads SET first_name=?, last_name=?, phone=?, email=?, buyer_agent_id=?, listing_agent_id=?, loan_status=?, package_status=?, appr_date_time=?, lock_date=?, loan_amount=?, closing_date=?, updated_at=? WHERE id=?`,
		l.FirstName, l.LastName, nullable(l.Phone), nullable(l.Email),
		nullableStringPtr(l.BuyerAgentID), nullableStringPtr(l.ListingAgentID),
		nullableStringPtr(l.LoanStatus), nullableStringPtr(l.PackageStatus), nullableStringPtr(l.ApprDateTime),
		nullableStringPtr(l.LockDate), nullableStringPtr(l.LoanAmount), nullableStringPtr(l.ClosingDate),
		l.UpdatedAt, l.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	return scanLead(r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=?`, id))
}

type LeadFilters struct {
	LoanStatus      string
	AgentID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListLeads(ctx context.Context, f LeadFilters) ([]domain.Lead, error) {
	var clauses []string
	var args []any
	if f.LoanStatus != "" {
		clauses = append(clauses, "loan_status=?")
		args = append(args, f.LoanStatus)
	}
	if f.AgentID != "" {
		clauses = append(clauses, "(buyer_agent_id=? OR listing_agent_id=?)")
		args = append(args, f.AgentID, f.AgentID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + leadColumns + ` FROM leads ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// LeadFieldValue fetches a single column from a lead row, fresh at call time.
// The column name is interpolated and MUST already be validated against the
// field catalog by the caller. Returns nil for SQL NULL.
func (r Repo) LeadFieldValue(ctx context.Context, leadID, column string) (*string, error) {
	var raw any
	err := r.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM leads WHERE id=?`, column), leadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		s = fmt.Sprintf("%d", v)
	case float64:
		s = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		s = fmt.Sprint(v)
	}
	return &s, nil
}

// SetLeadField writes a single catalog column. Caller validates the column.
func (r Repo) SetLeadField(ctx context.Context, tx *sql.Tx, leadID, column string, value *string, now string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE leads SET %s=?, updated_at=? WHERE id=?`, column),
		nullableStringPtr(value), now, leadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agents(id,role,first_name,last_name,phone,email,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.Role, a.FirstName, a.LastName, nullable(a.Phone), nullable(a.Email), a.CreatedAt)
	return err
}

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	var a domain.Agent
	err := r.DB.QueryRowContext(ctx, `SELECT id,role,first_name,last_name,COALESCE(phone,''),COALESCE(email,''),created_at FROM agents WHERE id=?`, id).
		Scan(&a.ID, &a.Role, &a.FirstName, &a.LastName, &a.Phone, &a.Email, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAgents(ctx context.Context, role string) ([]domain.Agent, error) {
	query := `SELECT id,role,first_name,last_name,COALESCE(phone,''),COALESCE(email,''),created_at FROM agents`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Role, &a.FirstName, &a.LastName, &a.Phone, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
