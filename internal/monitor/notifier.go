package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
)

// Notifier receives assessments at or above the pipeline's alert floor. A
// batch that failed part way is retried, so the same transaction can be
// delivered more than once; implementations dedupe by transaction id.
type Notifier interface {
	Notify(ctx context.Context, txn domain.Transaction, a domain.RiskAssessment) error
}

// AlertWriter persists fraud alerts. Insert reports false when the
// transaction already has an alert.
type AlertWriter interface {
	Insert(ctx context.Context, a domain.FraudAlert) (bool, error)
}

// AlertNotifier turns notifications into open fraud alerts.
type AlertNotifier struct {
	alerts  AlertWriter
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAlertNotifier(alerts AlertWriter, m *metrics.Metrics) *AlertNotifier {
	return &AlertNotifier{alerts: alerts, metrics: m, now: time.Now}
}

func (n *AlertNotifier) Notify(ctx context.Context, txn domain.Transaction, a domain.RiskAssessment) error {
	now := n.now()
	alert := domain.FraudAlert{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		CustomerID:    txn.CustomerID,
		Amount:        txn.Amount,
		Score:         a.Score,
		Severity:      a.Severity,
		Rules:         a.TriggeredRules,
		Status:        domain.AlertOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := n.alerts.Insert(ctx, alert)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	n.metrics.AlertRaised(a.Severity)
	logger.Warn("[monitor] fraud alert raised",
		"alert_id", alert.ID,
		"transaction_id", txn.ID,
		"customer_id", txn.CustomerID,
		"score", a.Score,
		"severity", a.Severity,
		"rules", a.TriggeredRules,
	)
	return nil
}
