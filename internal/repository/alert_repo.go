package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/udtms/txmonitor/internal/domain"
)

const alertColumns = `id, transaction_id, customer_id, amount, score, severity, rules, status, created_at, updated_at`

type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Insert stores an alert. A transaction can only ever carry one alert; a
// second insert for the same transaction is ignored and reports false.
func (r *AlertRepo) Insert(ctx context.Context, a domain.FraudAlert) (bool, error) {
	rules, err := json.Marshal(nonNilRules(a.Rules))
	if err != nil {
		return false, fmt.Errorf("marshal rules: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alerts (`+alertColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TransactionID, a.CustomerID, a.Amount, a.Score, string(a.Severity), string(rules),
		string(a.Status), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *AlertRepo) Get(ctx context.Context, id string) (*domain.FraudAlert, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

func (r *AlertRepo) UpdateStatus(ctx context.Context, a domain.FraudAlert) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?",
		string(a.Status), formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

type AlertFilter struct {
	Status     string
	Severity   string
	CustomerID string
	Page
}

func (r *AlertRepo) List(ctx context.Context, f AlertFilter) ([]domain.FraudAlert, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	w := where(clauses)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+w, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := f.limitOffset()
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM alerts"+w+" ORDER BY score DESC, created_at DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.FraudAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Stats counts alerts by severity and by disposition.
func (r *AlertRepo) Stats(ctx context.Context) (*domain.AlertStats, error) {
	var s domain.AlertStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN severity IN ('high','critical') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN severity = 'medium' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN severity = 'low' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'dismissed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('open','investigating') THEN 1 ELSE 0 END), 0)
		FROM alerts
	`).Scan(&s.HighRisk, &s.MediumRisk, &s.LowRisk, &s.Blocked, &s.Dismissed, &s.Open)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanAlert(row rowScanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var severity, rules, status, created, updated string
	if err := row.Scan(
		&a.ID, &a.TransactionID, &a.CustomerID, &a.Amount, &a.Score, &severity, &rules,
		&status, &created, &updated,
	); err != nil {
		return nil, err
	}
	a.Severity = domain.Severity(severity)
	a.Status = domain.AlertStatus(status)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(rules), &a.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return &a, nil
}
