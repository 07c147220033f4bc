package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one past transaction kept for velocity checks.
type Observation struct {
	TransactionID string    `json:"transaction_id"`
	At            time.Time `json:"at"`
}

// CustomerProfile holds the rolling statistics the anomaly rules read.
// The scorer treats it as read-only; updates go through profile.Observe.
type CustomerProfile struct {
	CustomerID   string          `json:"customer_id"`
	TxnCount     int             `json:"txn_count"`
	AmountTotal  decimal.Decimal `json:"amount_total"`
	Recent       []Observation   `json:"recent"`
	KnownDevices []string        `json:"known_devices"`
	LastLocation string          `json:"last_location,omitempty"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
}

// AverageAmount returns the historical average amount. ok is false when there
// is no history to average over.
func (p *CustomerProfile) AverageAmount() (avg decimal.Decimal, ok bool) {
	if p == nil || p.TxnCount <= 0 {
		return decimal.Zero, false
	}
	return p.AmountTotal.Div(decimal.NewFromInt(int64(p.TxnCount))), true
}

func (p *CustomerProfile) HasDevice(id string) bool {
	if p == nil {
		return false
	}
	for _, d := range p.KnownDevices {
		if d == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can advance a profile without touching
// the shared snapshot.
func (p *CustomerProfile) Clone() *CustomerProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Recent = append([]Observation(nil), p.Recent...)
	c.KnownDevices = append([]string(nil), p.KnownDevices...)
	return &c
}
