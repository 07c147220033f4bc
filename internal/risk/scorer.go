// Package risk turns a transaction and the customer's rolling profile into a
// bounded risk score.
//
// Scoring is a pure function of its inputs: the same transaction and profile
// always produce the same assessment. The scorer never reads the clock and
// never writes to the profile; incorporating the scored transaction into the
// profile is a separate step owned by the caller.
package risk

import (
	"time"

	"github.com/udtms/txmonitor/internal/domain"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Scorer applies a fixed rule configuration. It is safe for concurrent use.
type Scorer struct {
	cfg   Config
	tiers []AmountTier
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scorer{cfg: cfg, tiers: cfg.sortedTiers()}, nil
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// Score evaluates every enabled rule and aggregates the result. Invalid
// transactions are rejected; a nil or sparse profile only disables the rules
// that depend on it.
func (s *Scorer) Score(txn domain.Transaction, profile *domain.CustomerProfile) (domain.RiskAssessment, error) {
	if err := txn.Validate(); err != nil {
		return domain.RiskAssessment{}, err
	}

	signals := s.Signals(txn, profile)

	score := s.amountPoints(txn)
	rules := make([]domain.RuleID, 0, len(signals))
	for _, sig := range signals {
		score += s.cfg.SignalPoints[sig.Severity]
		rules = append(rules, sig.Rule)
	}
	if s.InElevatedBand(txn.Timestamp) {
		score += s.cfg.ElevatedBand.Points
	}
	score = clamp(score)

	return domain.RiskAssessment{
		TransactionID:  txn.ID,
		CustomerID:     txn.CustomerID,
		Score:          score,
		Severity:       s.Classify(score),
		TriggeredRules: rules,
		Signals:        signals,
	}, nil
}

// Signals runs the rule set in a fixed order.
func (s *Scorer) Signals(txn domain.Transaction, profile *domain.CustomerProfile) []domain.Signal {
	checks := []*domain.Signal{
		VelocityCheck(s.cfg.Velocity, txn, profile),
		AmountAnomalyCheck(s.cfg.AmountAnomaly, txn, profile),
		GeoAnomalyCheck(s.cfg.Geo, txn, profile),
		DeviceNoveltyCheck(s.cfg.Device, txn, profile),
	}
	signals := make([]domain.Signal, 0, len(checks))
	for _, sig := range checks {
		if sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

// Classify maps a score onto a severity using the configured cutoffs only.
func (s *Scorer) Classify(score int) domain.Severity {
	switch {
	case score >= s.cfg.HighCutoff:
		return domain.SeverityHigh
	case score >= s.cfg.MediumCutoff:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func (s *Scorer) InElevatedBand(ts time.Time) bool {
	return s.cfg.ElevatedBand.Contains(ts.In(s.cfg.Location).Hour())
}

func (s *Scorer) amountPoints(txn domain.Transaction) int {
	for _, tier := range s.tiers {
		if txn.Amount.GreaterThan(tier.Over) {
			return tier.Points
		}
	}
	return 0
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
