package domain

import "time"

// RuleID identifies a heuristic in the scoring rule set.
type RuleID string

const (
	RuleVelocity      RuleID = "velocity"
	RuleAmountAnomaly RuleID = "amount_anomaly"
	RuleGeoAnomaly    RuleID = "geo_anomaly"
	RuleDeviceNovelty RuleID = "device_novelty"
)

// Signal is the output of a single rule that detected a suspicious pattern.
type Signal struct {
	Rule     RuleID   `json:"rule"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// RiskAssessment is the derived result of scoring one transaction. Score is
// always within [0, 100] and Severity is a function of Score alone.
type RiskAssessment struct {
	TransactionID  string    `json:"transaction_id"`
	CustomerID     string    `json:"customer_id"`
	Score          int       `json:"score"`
	Severity       Severity  `json:"severity"`
	TriggeredRules []RuleID  `json:"triggered_rules"`
	Signals        []Signal  `json:"signals"`
	AssessedAt     time.Time `json:"assessed_at"`
}

// Fired reports whether the given rule contributed a signal.
func (a RiskAssessment) Fired(rule RuleID) bool {
	for _, r := range a.TriggeredRules {
		if r == rule {
			return true
		}
	}
	return false
}
