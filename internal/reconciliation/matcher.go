package reconciliation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/domain"
)

// Result holds every input entry in exactly one bucket.
type Result struct {
	Strategy   string                        `json:"strategy"`
	Matched    []domain.ReconciliationRecord `json:"matched"`
	Discrepant []domain.ReconciliationRecord `json:"discrepant"`
	Unmatched  []domain.ReconciliationRecord `json:"unmatched"`
	// Duplicates are second and later occurrences of a key within one
	// source. The first occurrence is the one that takes part in matching.
	Duplicates []domain.ReconciliationRecord `json:"duplicates"`
}

// Records returns all records in bucket order.
func (r *Result) Records() []domain.ReconciliationRecord {
	out := make([]domain.ReconciliationRecord, 0,
		len(r.Matched)+len(r.Discrepant)+len(r.Unmatched)+len(r.Duplicates))
	out = append(out, r.Matched...)
	out = append(out, r.Discrepant...)
	out = append(out, r.Unmatched...)
	out = append(out, r.Duplicates...)
	return out
}

// Check verifies the conservation law: every A entry and every B entry is
// accounted for exactly once, and matched records carry no delta.
func (r *Result) Check(countA, countB int) error {
	var seenA, seenB int
	for _, rec := range r.Records() {
		if rec.SourceA != nil {
			seenA++
		}
		if rec.SourceB != nil {
			seenB++
		}
		if rec.Status == domain.MatchMatched && !rec.AmountDelta.IsZero() {
			return fmt.Errorf("matched record %s has delta %s", rec.Key, rec.AmountDelta)
		}
	}
	if seenA != countA {
		return fmt.Errorf("source A: %d entries in, %d accounted for", countA, seenA)
	}
	if seenB != countB {
		return fmt.Errorf("source B: %d entries in, %d accounted for", countB, seenB)
	}
	return nil
}

// Matcher pairs entries from two ledgers. It holds no state between runs.
type Matcher struct {
	strategy  KeyStrategy
	tolerance decimal.Decimal
}

// NewMatcher builds a matcher. Pairs whose absolute amount difference is at
// most tolerance are matched; larger differences are discrepant.
func NewMatcher(strategy KeyStrategy, tolerance decimal.Decimal) *Matcher {
	if strategy == nil {
		strategy = ReferenceKey{}
	}
	return &Matcher{strategy: strategy, tolerance: tolerance.Abs()}
}

func (m *Matcher) Strategy() string {
	return m.strategy.Name()
}

// Reconcile classifies a against b. Each B entry can be consumed at most
// once; within a source the first occurrence of a key wins.
func (m *Matcher) Reconcile(a, b []domain.LedgerEntry) *Result {
	res := &Result{Strategy: m.strategy.Name()}

	lookup := make(map[string]int, len(b))
	for i := range b {
		key, ok := m.strategy.Key(b[i])
		if !ok {
			continue
		}
		if _, dup := lookup[key]; dup {
			res.Duplicates = append(res.Duplicates, domain.ReconciliationRecord{
				Status:  domain.MatchDuplicate,
				Key:     key,
				SourceB: &b[i],
				Orphan:  domain.SideB,
			})
			continue
		}
		lookup[key] = i
	}

	seenA := make(map[string]bool, len(a))
	for i := range a {
		entry := &a[i]
		key, ok := m.strategy.Key(*entry)
		if !ok {
			res.Unmatched = append(res.Unmatched, orphan("", entry, domain.SideA))
			continue
		}
		if seenA[key] {
			res.Duplicates = append(res.Duplicates, domain.ReconciliationRecord{
				Status:  domain.MatchDuplicate,
				Key:     key,
				SourceA: entry,
				Orphan:  domain.SideA,
			})
			continue
		}
		seenA[key] = true

		bi, found := lookup[key]
		if !found {
			res.Unmatched = append(res.Unmatched, orphan(key, entry, domain.SideA))
			continue
		}
		delete(lookup, key)

		counterpart := &b[bi]
		delta := entry.Amount.Sub(counterpart.Amount)
		if delta.Abs().LessThanOrEqual(m.tolerance) {
			res.Matched = append(res.Matched, domain.ReconciliationRecord{
				Status:      domain.MatchMatched,
				Key:         key,
				SourceA:     entry,
				SourceB:     counterpart,
				AmountDelta: decimal.Zero,
			})
			continue
		}
		res.Discrepant = append(res.Discrepant, domain.ReconciliationRecord{
			Status:      domain.MatchDiscrepant,
			Key:         key,
			SourceA:     entry,
			SourceB:     counterpart,
			AmountDelta: delta,
		})
	}

	// Remaining B entries, keyed or not, are reported in input order.
	for i := range b {
		key, ok := m.strategy.Key(b[i])
		if !ok {
			res.Unmatched = append(res.Unmatched, orphan("", &b[i], domain.SideB))
			continue
		}
		if idx, left := lookup[key]; left && idx == i {
			res.Unmatched = append(res.Unmatched, orphan(key, &b[i], domain.SideB))
		}
	}

	return res
}

func orphan(key string, e *domain.LedgerEntry, side domain.Side) domain.ReconciliationRecord {
	rec := domain.ReconciliationRecord{
		Status:      domain.MatchUnmatched,
		Key:         key,
		AmountDelta: decimal.Zero,
		Orphan:      side,
	}
	if side == domain.SideA {
		rec.SourceA = e
	} else {
		rec.SourceB = e
	}
	return rec
}
