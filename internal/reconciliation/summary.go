package reconciliation

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/domain"
)

// PlatformSummary is the per-platform reconciliation card.
type PlatformSummary struct {
	Platform          domain.Platform `json:"platform"`
	Matched           int             `json:"matched"`
	Discrepant        int             `json:"discrepant"`
	Unmatched         int             `json:"unmatched"`
	Duplicates        int             `json:"duplicates"`
	DiscrepancyAmount decimal.Decimal `json:"discrepancy_amount"`
	MatchRate         decimal.Decimal `json:"match_rate"`
}

// Summarize groups a result by platform. MatchRate is the percentage of the
// platform's records that matched cleanly.
func Summarize(res *Result) []PlatformSummary {
	byPlatform := make(map[domain.Platform]*PlatformSummary)
	get := func(rec domain.ReconciliationRecord) *PlatformSummary {
		p := rec.Entry().Platform
		s, ok := byPlatform[p]
		if !ok {
			s = &PlatformSummary{Platform: p, DiscrepancyAmount: decimal.Zero}
			byPlatform[p] = s
		}
		return s
	}

	for _, rec := range res.Matched {
		get(rec).Matched++
	}
	for _, rec := range res.Discrepant {
		s := get(rec)
		s.Discrepant++
		s.DiscrepancyAmount = s.DiscrepancyAmount.Add(rec.AmountDelta.Abs())
	}
	for _, rec := range res.Unmatched {
		get(rec).Unmatched++
	}
	for _, rec := range res.Duplicates {
		get(rec).Duplicates++
	}

	out := make([]PlatformSummary, 0, len(byPlatform))
	for _, s := range byPlatform {
		total := s.Matched + s.Discrepant + s.Unmatched + s.Duplicates
		s.MatchRate = decimal.Zero
		if total > 0 {
			s.MatchRate = decimal.NewFromInt(int64(s.Matched)).
				Div(decimal.NewFromInt(int64(total))).
				Mul(decimal.NewFromInt(100)).
				Round(1)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
