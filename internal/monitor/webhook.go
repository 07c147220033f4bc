package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
)

// Notifiers fans a notification out in order and stops at the first error.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, txn domain.Transaction, a domain.RiskAssessment) error {
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, txn, a); err != nil {
			return err
		}
	}
	return nil
}

// WebhookStore is the subscription storage the webhook notifier needs.
type WebhookStore interface {
	ListWebhooks(ctx context.Context, event domain.WebhookEvent) ([]domain.Webhook, error)
	RecordDelivery(ctx context.Context, id string, at time.Time, deliveryErr string) error
}

// WebhookPayload is the JSON body posted to subscribers.
type WebhookPayload struct {
	Event         domain.WebhookEvent `json:"event"`
	TransactionID string              `json:"transaction_id,omitempty"`
	CustomerID    string              `json:"customer_id,omitempty"`
	Amount        *decimal.Decimal    `json:"amount,omitempty"`
	Score         int                 `json:"score,omitempty"`
	Severity      domain.Severity     `json:"severity,omitempty"`
	Rules         []domain.RuleID     `json:"rules,omitempty"`
	SentAt        time.Time           `json:"sent_at"`
}

// WebhookNotifier posts fraud alerts to every active fraud_alert webhook.
// A subscriber that is down does not fail the batch: the failure is logged
// and recorded on the webhook. Each delivery carries the transaction id as
// its idempotency key.
type WebhookNotifier struct {
	hooks   WebhookStore
	client  *Outbound
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewWebhookNotifier(hooks WebhookStore, client *Outbound, m *metrics.Metrics) *WebhookNotifier {
	if client == nil {
		client = NewOutbound(0)
	}
	return &WebhookNotifier{hooks: hooks, client: client, metrics: m, now: time.Now}
}

func (n *WebhookNotifier) Notify(ctx context.Context, txn domain.Transaction, a domain.RiskAssessment) error {
	hooks, err := n.hooks.ListWebhooks(ctx, domain.EventFraudAlert)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}

	amount := txn.Amount
	payload := WebhookPayload{
		Event:         domain.EventFraudAlert,
		TransactionID: txn.ID,
		CustomerID:    txn.CustomerID,
		Amount:        &amount,
		Score:         a.Score,
		Severity:      a.Severity,
		Rules:         a.TriggeredRules,
		SentAt:        n.now().UTC(),
	}
	for _, hook := range hooks {
		if err := n.Deliver(ctx, hook, payload, txn.ID); err != nil {
			return err
		}
	}
	return nil
}

// Deliver posts payload to hook and records the outcome on the webhook. It
// only fails when the outcome could not be recorded.
func (n *WebhookNotifier) Deliver(ctx context.Context, hook domain.Webhook, payload WebhookPayload, key string) error {
	deliveryErr := ""
	if err := n.post(ctx, hook, payload, key); err != nil {
		deliveryErr = err.Error()
		logger.Warn("[webhooks] delivery failed",
			"webhook_id", hook.ID,
			"url", hook.URL,
			"event", payload.Event,
			"error", err,
		)
	} else {
		logger.Debug("[webhooks] delivered", "webhook_id", hook.ID, "event", payload.Event)
	}
	n.metrics.WebhookDelivered(payload.Event, deliveryErr == "")

	return n.hooks.RecordDelivery(ctx, hook.ID, n.now(), deliveryErr)
}

func (n *WebhookNotifier) post(ctx context.Context, hook domain.Webhook, payload WebhookPayload, key string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	header := map[string]string{"X-Webhook-Event": string(payload.Event)}
	if key != "" {
		header["Idempotency-Key"] = key
	}

	status, err := n.client.Do(ctx, http.MethodPost, hook.URL, header, body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}
