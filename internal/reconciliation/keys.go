package reconciliation

import (
	"fmt"
	"strings"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
)

// KeyStrategy derives the matching key for a ledger entry. ok is false when
// the entry carries too little data to be keyed; such entries can never
// match and are reported as unmatched.
type KeyStrategy interface {
	Name() string
	Key(e domain.LedgerEntry) (key string, ok bool)
}

const (
	StrategyReference = "reference"
	StrategyFuzzy     = "fuzzy"
)

// ReferenceKey matches on the shared transaction reference, ignoring case
// and surrounding whitespace.
type ReferenceKey struct{}

func (ReferenceKey) Name() string { return StrategyReference }

func (ReferenceKey) Key(e domain.LedgerEntry) (string, bool) {
	ref := strings.ToUpper(strings.TrimSpace(e.Reference))
	return ref, ref != ""
}

// FuzzyKey is for ledgers without a shared reference. The key is the amount
// to two decimals, the timestamp truncated to Bucket (UTC) and the
// counterparty lower-cased with whitespace collapsed. Amounts are part of
// the key, so fuzzy matching never produces discrepant pairs.
type FuzzyKey struct {
	Bucket time.Duration
}

func (FuzzyKey) Name() string { return StrategyFuzzy }

func (f FuzzyKey) Key(e domain.LedgerEntry) (string, bool) {
	if e.Timestamp.IsZero() {
		return "", false
	}
	ts := e.Timestamp.UTC()
	if f.Bucket > 0 {
		ts = ts.Truncate(f.Bucket)
	}
	party := strings.Join(strings.Fields(strings.ToLower(e.Counterparty)), " ")
	return fmt.Sprintf("%s|%s|%s", e.Amount.StringFixed(2), ts.Format(time.RFC3339), party), true
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string, bucket time.Duration) (KeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyReference:
		return ReferenceKey{}, nil
	case StrategyFuzzy:
		return FuzzyKey{Bucket: bucket}, nil
	default:
		return nil, fmt.Errorf("unknown matching strategy: %s", name)
	}
}
