package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// VelocityCount returns how many of the customer's earlier transactions fall in
// [txn.Timestamp - window, txn.Timestamp]. The scored transaction itself is
// never counted, so re-scoring after a profile update gives the same count.
func VelocityCount(profile *domain.CustomerProfile, txn domain.Transaction, window time.Duration) int {
	if profile == nil {
		return 0
	}
	start := txn.Timestamp.Add(-window)
	count := 0
	for _, o := range profile.Recent {
		if o.TransactionID == txn.ID {
			continue
		}
		if !o.At.Before(start) && !o.At.After(txn.Timestamp) {
			count++
		}
	}
	return count
}

func VelocityCheck(rule VelocityRule, txn domain.Transaction, profile *domain.CustomerProfile) *domain.Signal {
	if !rule.Enabled || profile == nil {
		return nil
	}
	count := VelocityCount(profile, txn, rule.Window)
	if count < rule.Threshold {
		return nil
	}
	return &domain.Signal{
		Rule:     domain.RuleVelocity,
		Severity: domain.SeverityHigh,
		Detail:   fmt.Sprintf("%d transactions within %s", count, rule.Window),
	}
}

// AmountAnomalyCheck never fires without history: an undefined or zero
// average is insufficient data, not an anomaly.
func AmountAnomalyCheck(rule AmountAnomalyRule, txn domain.Transaction, profile *domain.CustomerProfile) *domain.Signal {
	if !rule.Enabled {
		return nil
	}
	avg, ok := profile.AverageAmount()
	if !ok || !avg.IsPositive() {
		return nil
	}
	pct := txn.Amount.Sub(avg).Div(avg).Mul(hundred)
	if pct.LessThan(rule.MediumPct) {
		return nil
	}
	sev := domain.SeverityMedium
	if pct.GreaterThanOrEqual(rule.HighPct) {
		sev = domain.SeverityHigh
	}
	return &domain.Signal{
		Rule:     domain.RuleAmountAnomaly,
		Severity: sev,
		Detail:   fmt.Sprintf("amount %s is %s%% above average %s", txn.Amount, pct.Round(1), avg.Round(2)),
	}
}

func GeoAnomalyCheck(rule GeoRule, txn domain.Transaction, profile *domain.CustomerProfile) *domain.Signal {
	if !rule.Enabled || profile == nil {
		return nil
	}
	current := normalizeLocation(txn.Location)
	previous := normalizeLocation(profile.LastLocation)
	if current == "" || previous == "" || profile.LastSeenAt.IsZero() || current == previous {
		return nil
	}
	elapsed := txn.Timestamp.Sub(profile.LastSeenAt)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	if elapsed >= rule.MinTravelTime {
		return nil
	}
	return &domain.Signal{
		Rule:     domain.RuleGeoAnomaly,
		Severity: domain.SeverityHigh,
		Detail:   fmt.Sprintf("%s -> %s in %s", profile.LastLocation, txn.Location, elapsed),
	}
}

// DeviceNoveltyCheck is informational: a new device only yields a low signal.
func DeviceNoveltyCheck(rule DeviceRule, txn domain.Transaction, profile *domain.CustomerProfile) *domain.Signal {
	if !rule.Enabled || profile == nil || txn.DeviceID == "" {
		return nil
	}
	if profile.HasDevice(txn.DeviceID) {
		return nil
	}
	return &domain.Signal{
		Rule:     domain.RuleDeviceNovelty,
		Severity: domain.SeverityLow,
		Detail:   fmt.Sprintf("device %s not seen before", txn.DeviceID),
	}
}

func normalizeLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
