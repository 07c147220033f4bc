package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
)

const integrationColumns = `id, name, kind, url, status, latency_ms, checks, failures, last_checked_at, created_at`

const webhookColumns = `id, url, event, active, deliveries, failures, last_error, last_triggered_at, created_at`

// IntegrationRepo stores provider endpoints, their request log and the
// webhook subscriptions.
type IntegrationRepo struct {
	db *sql.DB
}

func NewIntegrationRepo(db *sql.DB) *IntegrationRepo {
	return &IntegrationRepo{db: db}
}

func (r *IntegrationRepo) Create(ctx context.Context, i domain.Integration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO integrations (`+integrationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		i.ID, i.Name, string(i.Kind), i.URL, string(i.Status), i.LatencyMS, i.Checks, i.Failures,
		formatNullableTime(i.LastCheckedAt), formatTime(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert integration %s: %w", i.ID, err)
	}
	return nil
}

func (r *IntegrationRepo) Get(ctx context.Context, id string) (*domain.Integration, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+integrationColumns+" FROM integrations WHERE id = ?", id)
	i, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integration %s: %w", id, domain.ErrNotFound)
	}
	return i, err
}

func (r *IntegrationRepo) List(ctx context.Context) ([]domain.Integration, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+integrationColumns+" FROM integrations ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (r *IntegrationRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM api_calls WHERE integration_id = ?", id); err != nil {
		return fmt.Errorf("delete calls: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM integrations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete integration %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("integration %s: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}

// RecordCheck appends call to the request log and folds it into the
// integration's running health figures in one transaction.
func (r *IntegrationRepo) RecordCheck(ctx context.Context, call domain.APICall, status domain.EndpointStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	failed := 0
	if !call.OK() {
		failed = 1
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE integrations SET status = ?, latency_ms = ?, checks = checks + 1,
		failures = failures + ?, last_checked_at = ? WHERE id = ?`,
		string(status), call.LatencyMS, failed, formatTime(call.At), call.IntegrationID,
	)
	if err != nil {
		return fmt.Errorf("update integration %s: %w", call.IntegrationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("integration %s: %w", call.IntegrationID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_calls (integration_id, method, path, status_code, latency_ms, error, at)
		VALUES (?,?,?,?,?,?,?)`,
		call.IntegrationID, call.Method, call.Path, call.StatusCode, call.LatencyMS, call.Error, formatTime(call.At),
	); err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return tx.Commit()
}

// ListCalls returns the most recent request log entries, newest first. An
// empty integrationID lists calls across all integrations.
func (r *IntegrationRepo) ListCalls(ctx context.Context, integrationID string, limit int) ([]domain.APICall, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT integration_id, method, path, status_code, latency_ms, error, at FROM api_calls`
	var args []any
	if integrationID != "" {
		q += " WHERE integration_id = ?"
		args = append(args, integrationID)
	}
	q += " ORDER BY at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.APICall
	for rows.Next() {
		var c domain.APICall
		var at string
		if err := rows.Scan(&c.IntegrationID, &c.Method, &c.Path, &c.StatusCode, &c.LatencyMS, &c.Error, &at); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		c.At = parseTime(at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- webhooks ---

func (r *IntegrationRepo) CreateWebhook(ctx context.Context, w domain.Webhook) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhooks (`+webhookColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		w.ID, w.URL, string(w.Event), w.Active, w.Deliveries, w.Failures, w.LastError,
		formatNullableTime(w.LastTriggeredAt), formatTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert webhook %s: %w", w.ID, err)
	}
	return nil
}

func (r *IntegrationRepo) GetWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE id = ?", id)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook %s: %w", id, domain.ErrNotFound)
	}
	return w, err
}

// ListWebhooks returns all subscriptions, or only the active ones for event
// when event is set.
func (r *IntegrationRepo) ListWebhooks(ctx context.Context, event domain.WebhookEvent) ([]domain.Webhook, error) {
	q := "SELECT " + webhookColumns + " FROM webhooks"
	var args []any
	if event != "" {
		q += " WHERE event = ? AND active = 1"
		args = append(args, string(event))
	}
	q += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *IntegrationRepo) DeleteWebhook(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete webhook %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RecordDelivery updates a webhook's delivery counters. deliveryErr is empty
// on success.
func (r *IntegrationRepo) RecordDelivery(ctx context.Context, id string, at time.Time, deliveryErr string) error {
	failed := 0
	if deliveryErr != "" {
		failed = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET deliveries = deliveries + 1, failures = failures + ?,
		last_error = ?, last_triggered_at = ? WHERE id = ?`,
		failed, deliveryErr, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update webhook %s: %w", id, err)
	}
	return nil
}

func scanIntegration(row rowScanner) (*domain.Integration, error) {
	var i domain.Integration
	var kind, status, created string
	var checked sql.NullString
	if err := row.Scan(
		&i.ID, &i.Name, &kind, &i.URL, &status, &i.LatencyMS, &i.Checks, &i.Failures, &checked, &created,
	); err != nil {
		return nil, err
	}
	i.Kind = domain.IntegrationKind(kind)
	i.Status = domain.EndpointStatus(status)
	i.CreatedAt = parseTime(created)
	if checked.Valid {
		t := parseTime(checked.String)
		i.LastCheckedAt = &t
	}
	return &i, nil
}

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var event, created string
	var triggered sql.NullString
	if err := row.Scan(
		&w.ID, &w.URL, &event, &w.Active, &w.Deliveries, &w.Failures, &w.LastError, &triggered, &created,
	); err != nil {
		return nil, err
	}
	w.Event = domain.WebhookEvent(event)
	w.CreatedAt = parseTime(created)
	if triggered.Valid {
		t := parseTime(triggered.String)
		w.LastTriggeredAt = &t
	}
	return &w, nil
}
