package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/udtms/txmonitor/internal/domain"
)

type AssessmentRepo struct {
	db *sql.DB
}

func NewAssessmentRepo(db *sql.DB) *AssessmentRepo {
	return &AssessmentRepo{db: db}
}

// Save stores an unsettled assessment. Re-saving the same transaction keeps
// the first assessment and reports false.
func (r *AssessmentRepo) Save(ctx context.Context, a domain.RiskAssessment) (bool, error) {
	rules, err := json.Marshal(nonNilRules(a.TriggeredRules))
	if err != nil {
		return false, fmt.Errorf("marshal rules: %w", err)
	}
	signals, err := json.Marshal(nonNilSignals(a.Signals))
	if err != nil {
		return false, fmt.Errorf("marshal signals: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assessments
		(transaction_id, customer_id, score, severity, triggered_rules, signals, assessed_at)
		VALUES (?,?,?,?,?,?,?)`,
		a.TransactionID, a.CustomerID, a.Score, string(a.Severity), string(rules), string(signals),
		formatTime(a.AssessedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert assessment %s: %w", a.TransactionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const assessmentColumns = `transaction_id, customer_id, score, severity, triggered_rules, signals, assessed_at`

func scanAssessment(row rowScanner) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var severity, rules, signals, assessedAt string
	if err := row.Scan(&a.TransactionID, &a.CustomerID, &a.Score, &severity, &rules, &signals, &assessedAt); err != nil {
		return nil, err
	}
	a.Severity = domain.Severity(severity)
	a.AssessedAt = parseTime(assessedAt)
	if err := json.Unmarshal([]byte(rules), &a.TriggeredRules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := json.Unmarshal([]byte(signals), &a.Signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return &a, nil
}

func (r *AssessmentRepo) Get(ctx context.Context, transactionID string) (*domain.RiskAssessment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE transaction_id = ?", transactionID)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %s: %w", transactionID, domain.ErrNotFound)
	}
	return a, err
}

// SettledIDs returns the subset of ids whose assessment has been stored and
// settled. An assessment is settled once its alert and profile update have
// been applied.
func (r *AssessmentRepo) SettledIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	err := inChunks(ids, func(part []any) error {
		rows, err := r.db.QueryContext(ctx,
			"SELECT transaction_id FROM assessments WHERE settled = 1 AND transaction_id IN ("+placeholders(len(part))+")",
			part...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			found[id] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Unsettled returns the stored assessments among ids that were saved by a
// batch that failed before settling them.
func (r *AssessmentRepo) Unsettled(ctx context.Context, ids []string) (map[string]domain.RiskAssessment, error) {
	found := make(map[string]domain.RiskAssessment)
	err := inChunks(ids, func(part []any) error {
		rows, err := r.db.QueryContext(ctx,
			"SELECT "+assessmentColumns+" FROM assessments WHERE settled = 0 AND transaction_id IN ("+placeholders(len(part))+")",
			part...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAssessment(rows)
			if err != nil {
				return err
			}
			found[a.TransactionID] = *a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// MarkSettled flags the given assessments as fully applied.
func (r *AssessmentRepo) MarkSettled(ctx context.Context, ids []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = inChunks(ids, func(part []any) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE assessments SET settled = 1 WHERE transaction_id IN ("+placeholders(len(part))+")",
			part...)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	return tx.Commit()
}

// inChunks calls fn with ids split into groups small enough for one IN list.
func inChunks(ids []string, fn func(part []any) error) error {
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			part = append(part, id)
		}
		if err := fn(part); err != nil {
			return err
		}
	}
	return nil
}

func (r *AssessmentRepo) CountBySeverity(ctx context.Context) (map[string]int, error) {
	m := make(map[string]int)
	if err := scanGroupCount(ctx, r.db, "assessments", "severity", m); err != nil {
		return nil, err
	}
	return m, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

func nonNilRules(r []domain.RuleID) []domain.RuleID {
	if r == nil {
		return []domain.RuleID{}
	}
	return r
}

func nonNilSignals(s []domain.Signal) []domain.Signal {
	if s == nil {
		return []domain.Signal{}
	}
	return s
}
