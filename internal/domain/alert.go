package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertInvestigating AlertStatus = "investigating"
	AlertBlocked       AlertStatus = "blocked"
	AlertDismissed     AlertStatus = "dismissed"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertOpen:          {AlertInvestigating, AlertBlocked, AlertDismissed},
	AlertInvestigating: {AlertBlocked, AlertDismissed},
}

// FraudAlert is raised for an assessment at or above the alerting floor.
type FraudAlert struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Score         int             `json:"score"`
	Severity      Severity        `json:"severity"`
	Rules         []RuleID        `json:"rules"`
	Status        AlertStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transition moves the alert to next. blocked and dismissed are terminal.
func (a *FraudAlert) Transition(next AlertStatus, at time.Time) error {
	for _, allowed := range alertTransitions[a.Status] {
		if allowed == next {
			a.Status = next
			a.UpdatedAt = at
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "alert %s: %s -> %s", a.ID, a.Status, next)
}

// AlertStats mirrors the fraud overview counters.
type AlertStats struct {
	HighRisk   int `json:"high_risk"`
	MediumRisk int `json:"medium_risk"`
	LowRisk    int `json:"low_risk"`
	Blocked    int `json:"blocked"`
	Dismissed  int `json:"dismissed"`
	Open       int `json:"open"`
}
