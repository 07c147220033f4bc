package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

type Platform string

const (
	PlatformMobileMoney     Platform = "mobile_money"
	PlatformBank            Platform = "bank"
	PlatformInternetBanking Platform = "internet_banking"
	PlatformMobileBanking   Platform = "mobile_banking"
	PlatformFintech         Platform = "fintech"
)

var knownPlatforms = map[Platform]bool{
	PlatformMobileMoney:     true,
	PlatformBank:            true,
	PlatformInternetBanking: true,
	PlatformMobileBanking:   true,
	PlatformFintech:         true,
}

// Valid reports whether p is one of the supported payment platforms.
func (p Platform) Valid() bool {
	return knownPlatforms[p]
}

// ParsePlatform normalises labels such as "Mobile Money" or "mobile-money".
func ParsePlatform(s string) (Platform, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	p := Platform(norm)
	if !p.Valid() {
		return "", errors.Wrapf(ErrInvalidTransaction, "unknown platform %q", s)
	}
	return p, nil
}

// Transaction is an ingested payment event. It is never mutated after
// ingestion; scoring and profile updates derive new values from it.
type Transaction struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	CustomerID string            `json:"customer_id"`
	Platform   Platform          `json:"platform"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency,omitempty"`
	Status     TransactionStatus `json:"status"`
	Location   string            `json:"location,omitempty"`
	DeviceID   string            `json:"device_id,omitempty"`
}

// Validate rejects malformed transactions before they reach the scorer or
// the matcher. Every returned error wraps ErrInvalidTransaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.Wrap(ErrInvalidTransaction, "id is required")
	}
	if strings.TrimSpace(t.CustomerID) == "" {
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: customer_id is required", t.ID)
	}
	if t.Timestamp.IsZero() {
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: timestamp is required", t.ID)
	}
	if !t.Amount.IsPositive() {
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: amount %s must be positive", t.ID, t.Amount)
	}
	if !t.Platform.Valid() {
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: unknown platform %q", t.ID, t.Platform)
	}
	switch t.Status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: unknown status %q", t.ID, t.Status)
	}
	return nil
}
