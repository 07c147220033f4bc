package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/udtms/txmonitor/internal/domain"
)

const runColumns = `id, strategy, source_a_count, source_b_count, matched, discrepant, unmatched,
	duplicates, discrepancy_abs, started_at, completed_at`

type ReconciliationRepo struct {
	db *sql.DB
}

func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo {
	return &ReconciliationRepo{db: db}
}

// SaveRun stores a run together with its records and investigations in a
// single transaction.
func (r *ReconciliationRepo) SaveRun(
	ctx context.Context,
	run domain.ReconciliationRun,
	records []domain.ReconciliationRecord,
	investigations []domain.Investigation,
) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO reconciliation_runs (`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Strategy, run.SourceACount, run.SourceBCount, run.Matched, run.Discrepant,
		run.Unmatched, run.Duplicates, run.DiscrepancyAbs, formatTime(run.StartedAt), formatTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	recStmt, err := sqlTx.PrepareContext(ctx,
		`INSERT INTO reconciliation_records
		(run_id, seq, status, match_key, orphan, amount_delta, source_a, source_b)
		VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	for i, rec := range records {
		a, err := entryJSON(rec.SourceA)
		if err != nil {
			return err
		}
		b, err := entryJSON(rec.SourceB)
		if err != nil {
			return err
		}
		if _, err := recStmt.ExecContext(ctx,
			run.ID, i, string(rec.Status), rec.Key, string(rec.Orphan), rec.AmountDelta, a, b,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := insertInvestigations(ctx, sqlTx, investigations); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ReconciliationRepo) GetRun(ctx context.Context, id string) (*domain.ReconciliationRun, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM reconciliation_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return run, err
}

// LatestRun returns the most recently completed run, or ErrNotFound.
func (r *ReconciliationRepo) LatestRun(ctx context.Context) (*domain.ReconciliationRun, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM reconciliation_runs ORDER BY completed_at DESC LIMIT 1",
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest run: %w", domain.ErrNotFound)
	}
	return run, err
}

func (r *ReconciliationRepo) ListRuns(ctx context.Context, p Page) ([]domain.ReconciliationRun, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconciliation_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := p.limitOffset()
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM reconciliation_runs ORDER BY completed_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *run)
	}
	return out, total, rows.Err()
}

// ListRecords returns the records of a run in their original order,
// optionally restricted to one status.
func (r *ReconciliationRepo) ListRecords(ctx context.Context, runID string, status domain.MatchStatus) ([]domain.ReconciliationRecord, error) {
	q := `SELECT status, match_key, orphan, amount_delta, source_a, source_b
		FROM reconciliation_records WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY seq"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationRecord
	for rows.Next() {
		var rec domain.ReconciliationRecord
		var st, orphan string
		var a, b sql.NullString
		if err := rows.Scan(&st, &rec.Key, &orphan, &rec.AmountDelta, &a, &b); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec.Status = domain.MatchStatus(st)
		rec.Orphan = domain.Side(orphan)
		if rec.SourceA, err = parseEntryJSON(a); err != nil {
			return nil, err
		}
		if rec.SourceB, err = parseEntryJSON(b); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*domain.ReconciliationRun, error) {
	var run domain.ReconciliationRun
	var started, completed string
	if err := row.Scan(
		&run.ID, &run.Strategy, &run.SourceACount, &run.SourceBCount, &run.Matched, &run.Discrepant,
		&run.Unmatched, &run.Duplicates, &run.DiscrepancyAbs, &started, &completed,
	); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(started)
	run.CompletedAt = parseTime(completed)
	return &run, nil
}

func entryJSON(e *domain.LedgerEntry) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entry %s: %w", e.Reference, err)
	}
	return string(b), nil
}

func parseEntryJSON(s sql.NullString) (*domain.LedgerEntry, error) {
	if !s.Valid {
		return nil, nil
	}
	var e domain.LedgerEntry
	if err := json.Unmarshal([]byte(s.String), &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}
