package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
)

const transactionColumns = `t.id, t.timestamp, t.customer_id, t.platform, t.amount, t.currency,
	t.status, t.location, t.device_id`

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// BulkInsert stores transactions, ignoring ids that already exist. It
// returns the number of rows actually inserted.
func (r *TransactionRepo) BulkInsert(ctx context.Context, txns []domain.Transaction) (int, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO transactions
		(id, timestamp, customer_id, platform, amount, currency, status, location, device_id, ingested_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	inserted := 0
	for i := range txns {
		tx := &txns[i]
		res, err := stmt.ExecContext(ctx,
			tx.ID, formatTime(tx.Timestamp), tx.CustomerID, string(tx.Platform), tx.Amount,
			tx.Currency, string(tx.Status), tx.Location, tx.DeviceID, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions t WHERE t.id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx, err
}

// ListUnscored returns transactions with no stored assessment, or whose
// assessment was stored but never settled, oldest first.
func (r *TransactionRepo) ListUnscored(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions t
		LEFT JOIN assessments a ON a.transaction_id = t.id
		WHERE a.transaction_id IS NULL OR a.settled = 0
		ORDER BY t.timestamp, t.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *tx)
	}
	return txns, rows.Err()
}

type TransactionFilter struct {
	Platform string
	Status   string
	Severity string
	From     *time.Time
	To       *time.Time
	Page
}

// ScoredTransaction is a transaction joined with its assessment, if any.
type ScoredTransaction struct {
	domain.Transaction
	Score    *int            `json:"risk_score,omitempty"`
	Severity domain.Severity `json:"risk_level,omitempty"`
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter) ([]ScoredTransaction, int, error) {
	w, args := buildTransactionWhere(f)
	from := " FROM transactions t LEFT JOIN assessments a ON a.transaction_id = t.id"

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+w, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := f.limitOffset()
	q := "SELECT " + transactionColumns + ", a.score, a.severity" + from + w +
		" ORDER BY t.timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []ScoredTransaction
	for rows.Next() {
		var st ScoredTransaction
		var ts, platform, status string
		var score sql.NullInt64
		var severity sql.NullString
		if err := rows.Scan(
			&st.ID, &ts, &st.CustomerID, &platform, &st.Amount, &st.Currency,
			&status, &st.Location, &st.DeviceID, &score, &severity,
		); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		st.Timestamp = parseTime(ts)
		st.Platform = domain.Platform(platform)
		st.Status = domain.TransactionStatus(status)
		if score.Valid {
			v := int(score.Int64)
			st.Score = &v
		}
		if severity.Valid {
			st.Severity = domain.Severity(severity.String)
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

// FeedExistsByHash checks whether a feed file was already ingested.
func (r *TransactionRepo) FeedExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM feed_files WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *TransactionRepo) RecordFeed(ctx context.Context, hash, name string, records int) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO feed_files (file_hash, name, record_count, ingested_at) VALUES (?,?,?,?)",
		hash, name, records, formatTime(time.Now()),
	)
	return err
}

// DashboardStats holds aggregate transaction statistics.
type DashboardStats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByPlatform  map[string]int `json:"by_platform"`
	Scored      int            `json:"scored"`
	HighRisk    int            `json:"high_risk"`
	AverageRisk float64        `json:"average_risk"`
}

func (r *TransactionRepo) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	s := &DashboardStats{
		ByStatus:   make(map[string]int),
		ByPlatform: make(map[string]int),
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&s.Total); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN severity='high' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(score), 0)
		FROM assessments
	`).Scan(&s.Scored, &s.HighRisk, &s.AverageRisk); err != nil {
		return nil, err
	}
	if err := scanGroupCount(ctx, r.db, "transactions", "status", s.ByStatus); err != nil {
		return nil, err
	}
	if err := scanGroupCount(ctx, r.db, "transactions", "platform", s.ByPlatform); err != nil {
		return nil, err
	}
	return s, nil
}

// --- helpers ---

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Platform != "" {
		clauses = append(clauses, "t.platform = ?")
		args = append(args, f.Platform)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "a.severity = ?")
		args = append(args, f.Severity)
	}
	if f.From != nil {
		clauses = append(clauses, "t.timestamp >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "t.timestamp <= ?")
		args = append(args, formatTime(*f.To))
	}
	return where(clauses), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var ts, platform, status string

	err := row.Scan(
		&tx.ID, &ts, &tx.CustomerID, &platform, &tx.Amount, &tx.Currency,
		&status, &tx.Location, &tx.DeviceID,
	)
	if err != nil {
		return nil, err
	}

	tx.Timestamp = parseTime(ts)
	tx.Platform = domain.Platform(platform)
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

func scanGroupCount(ctx context.Context, db *sql.DB, table, col string, m map[string]int) error {
	rows, err := db.QueryContext(ctx,
		"SELECT "+col+", COUNT(*) FROM "+table+" GROUP BY "+col,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		m[k] = v
	}
	return rows.Err()
}
