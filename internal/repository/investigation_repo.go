package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/udtms/txmonitor/internal/domain"
)

const investigationColumns = `id, run_id, issue_type, match_key, reference, platform, amount, delta,
	priority, status, description, created_at, closed_at`

type InvestigationRepo struct {
	db *sql.DB
}

func NewInvestigationRepo(db *sql.DB) *InvestigationRepo {
	return &InvestigationRepo{db: db}
}

func insertInvestigations(ctx context.Context, tx *sql.Tx, invs []domain.Investigation) error {
	if len(invs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO investigations (`+investigationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare investigations: %w", err)
	}
	defer stmt.Close()

	for i := range invs {
		inv := &invs[i]
		if _, err := stmt.ExecContext(ctx,
			inv.ID, inv.RunID, string(inv.IssueType), inv.Key, inv.Reference, string(inv.Platform),
			inv.Amount, inv.Delta, string(inv.Priority), string(inv.Status), inv.Description,
			formatTime(inv.CreatedAt), formatNullableTime(inv.ClosedAt),
		); err != nil {
			return fmt.Errorf("insert investigation %s: %w", inv.ID, err)
		}
	}
	return nil
}

func (r *InvestigationRepo) Get(ctx context.Context, id string) (*domain.Investigation, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+investigationColumns+" FROM investigations WHERE id = ?", id)
	inv, err := scanInvestigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("investigation %s: %w", id, domain.ErrNotFound)
	}
	return inv, err
}

// UpdateStatus persists a closed investigation.
func (r *InvestigationRepo) UpdateStatus(ctx context.Context, inv domain.Investigation) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE investigations SET status = ?, closed_at = ? WHERE id = ?",
		string(inv.Status), formatNullableTime(inv.ClosedAt), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update investigation %s: %w", inv.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("investigation %s: %w", inv.ID, domain.ErrNotFound)
	}
	return nil
}

type InvestigationFilter struct {
	RunID     string
	Status    string
	IssueType string
	Priority  string
	Platform  string
	Page
}

func (r *InvestigationRepo) List(ctx context.Context, f InvestigationFilter) ([]domain.Investigation, int, error) {
	w, args := buildInvestigationWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM investigations"+w, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := f.limitOffset()
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, `SELECT `+investigationColumns+` FROM investigations`+w+`
		ORDER BY CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		created_at DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Investigation
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *InvestigationRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM investigations WHERE status = ?", string(domain.InvestigationOpen),
	).Scan(&n)
	return n, err
}

func buildInvestigationWhere(f InvestigationFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.IssueType != "" {
		clauses = append(clauses, "issue_type = ?")
		args = append(args, f.IssueType)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.Platform != "" {
		clauses = append(clauses, "platform = ?")
		args = append(args, f.Platform)
	}
	return where(clauses), args
}

func scanInvestigation(row rowScanner) (*domain.Investigation, error) {
	var inv domain.Investigation
	var issue, platform, priority, status, created string
	var closed sql.NullString

	if err := row.Scan(
		&inv.ID, &inv.RunID, &issue, &inv.Key, &inv.Reference, &platform, &inv.Amount, &inv.Delta,
		&priority, &status, &inv.Description, &created, &closed,
	); err != nil {
		return nil, err
	}
	inv.IssueType = domain.IssueType(issue)
	inv.Platform = domain.Platform(platform)
	inv.Priority = domain.Severity(priority)
	inv.Status = domain.InvestigationStatus(status)
	inv.CreatedAt = parseTime(created)
	if closed.Valid {
		t := parseTime(closed.String)
		inv.ClosedAt = &t
	}
	return &inv, nil
}
