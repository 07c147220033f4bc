package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Side identifies which of the two ledgers a record came from.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// LedgerEntry is one line of a platform or bank ledger export.
type LedgerEntry struct {
	Source       string          `json:"source,omitempty"`
	Reference    string          `json:"reference"`
	Platform     Platform        `json:"platform,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *LedgerEntry) Validate() error {
	if strings.TrimSpace(e.Reference) == "" && e.Timestamp.IsZero() {
		return errors.Wrap(ErrInvalidLedgerEntry, "reference or timestamp is required")
	}
	if e.Amount.IsNegative() {
		return errors.Wrapf(ErrInvalidLedgerEntry, "entry %s: amount %s is negative", e.Reference, e.Amount)
	}
	return nil
}

type MatchStatus string

const (
	MatchMatched    MatchStatus = "matched"
	MatchDiscrepant MatchStatus = "discrepant"
	MatchUnmatched  MatchStatus = "unmatched"
	MatchDuplicate  MatchStatus = "duplicate"
)

// ReconciliationRecord is the pairing outcome for one key. AmountDelta is
// SourceA.Amount - SourceB.Amount and is zero for matched records.
type ReconciliationRecord struct {
	Status      MatchStatus     `json:"status"`
	Key         string          `json:"key"`
	SourceA     *LedgerEntry    `json:"source_a,omitempty"`
	SourceB     *LedgerEntry    `json:"source_b,omitempty"`
	AmountDelta decimal.Decimal `json:"amount_delta"`
	Orphan      Side            `json:"orphan,omitempty"`
}

// Entry returns whichever side the record carries, preferring source A.
func (r *ReconciliationRecord) Entry() *LedgerEntry {
	if r.SourceA != nil {
		return r.SourceA
	}
	return r.SourceB
}

// ReconciliationRun summarises a persisted reconciliation pass.
type ReconciliationRun struct {
	ID             string          `json:"id"`
	Strategy       string          `json:"strategy"`
	SourceACount   int             `json:"source_a_count"`
	SourceBCount   int             `json:"source_b_count"`
	Matched        int             `json:"matched"`
	Discrepant     int             `json:"discrepant"`
	Unmatched      int             `json:"unmatched"`
	Duplicates     int             `json:"duplicates"`
	DiscrepancyAbs decimal.Decimal `json:"discrepancy_abs"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    time.Time       `json:"completed_at"`
}
