package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/domain"
)

// VelocityRule fires when a customer already has Threshold or more
// transactions inside the trailing Window ending at the scored timestamp.
type VelocityRule struct {
	Enabled   bool          `json:"enabled"`
	Window    time.Duration `json:"window"`
	Threshold int           `json:"threshold"`
}

// AmountAnomalyRule compares the amount against the customer's historical
// average. A percentage increase at or above MediumPct fires medium, at or
// above HighPct fires high.
type AmountAnomalyRule struct {
	Enabled   bool            `json:"enabled"`
	MediumPct decimal.Decimal `json:"medium_pct"`
	HighPct   decimal.Decimal `json:"high_pct"`
}

// GeoRule fires when the location changed faster than MinTravelTime allows.
type GeoRule struct {
	Enabled       bool          `json:"enabled"`
	MinTravelTime time.Duration `json:"min_travel_time"`
}

type DeviceRule struct {
	Enabled bool `json:"enabled"`
}

// AmountTier adds Points when the amount is strictly greater than Over.
type AmountTier struct {
	Over   decimal.Decimal `json:"over"`
	Points int             `json:"points"`
}

// TimeBand is a local-time hour range [StartHour, EndHour). A band whose end
// is before its start wraps past midnight.
type TimeBand struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
	Points    int `json:"points"`
}

func (b TimeBand) Contains(hour int) bool {
	if b.StartHour == b.EndHour {
		return false
	}
	if b.StartHour < b.EndHour {
		return hour >= b.StartHour && hour < b.EndHour
	}
	return hour >= b.StartHour || hour < b.EndHour
}

// Config is the full scoring rule set. Every threshold lives here.
type Config struct {
	Velocity      VelocityRule      `json:"velocity"`
	AmountAnomaly AmountAnomalyRule `json:"amount_anomaly"`
	Geo           GeoRule           `json:"geo"`
	Device        DeviceRule        `json:"device"`

	// AmountTiers are evaluated from the highest Over downwards; only the
	// first matching tier contributes.
	AmountTiers []AmountTier `json:"amount_tiers"`

	// SignalPoints is added once per fired signal according to its severity.
	SignalPoints map[domain.Severity]int `json:"signal_points"`

	ElevatedBand TimeBand       `json:"elevated_band"`
	Location     *time.Location `json:"-"`

	HighCutoff   int `json:"high_cutoff"`
	MediumCutoff int `json:"medium_cutoff"`
}

func DefaultConfig() Config {
	return Config{
		Velocity: VelocityRule{Enabled: true, Window: 10 * time.Minute, Threshold: 5},
		AmountAnomaly: AmountAnomalyRule{
			Enabled:   true,
			MediumPct: decimal.NewFromInt(200),
			HighPct:   decimal.NewFromInt(300),
		},
		Geo:    GeoRule{Enabled: true, MinTravelTime: 2 * time.Hour},
		Device: DeviceRule{Enabled: true},
		AmountTiers: []AmountTier{
			{Over: decimal.NewFromInt(5000), Points: 20},
			{Over: decimal.NewFromInt(2000), Points: 10},
			{Over: decimal.NewFromInt(1000), Points: 5},
		},
		SignalPoints: map[domain.Severity]int{
			domain.SeverityHigh:   30,
			domain.SeverityMedium: 15,
			domain.SeverityLow:    5,
		},
		ElevatedBand: TimeBand{StartHour: 0, EndHour: 6, Points: 10},
		Location:     time.UTC,
		HighCutoff:   70,
		MediumCutoff: 40,
	}
}

func (c *Config) Validate() error {
	if c.Velocity.Enabled && (c.Velocity.Window <= 0 || c.Velocity.Threshold <= 0) {
		return fmt.Errorf("velocity rule needs a positive window and threshold")
	}
	if c.AmountAnomaly.Enabled && c.AmountAnomaly.HighPct.LessThan(c.AmountAnomaly.MediumPct) {
		return fmt.Errorf("amount anomaly high threshold %s is below medium %s",
			c.AmountAnomaly.HighPct, c.AmountAnomaly.MediumPct)
	}
	if c.Geo.Enabled && c.Geo.MinTravelTime <= 0 {
		return fmt.Errorf("geo rule needs a positive travel time")
	}
	if c.ElevatedBand.StartHour < 0 || c.ElevatedBand.StartHour > 23 ||
		c.ElevatedBand.EndHour < 0 || c.ElevatedBand.EndHour > 24 {
		return fmt.Errorf("elevated band hours out of range: %d-%d",
			c.ElevatedBand.StartHour, c.ElevatedBand.EndHour)
	}
	if c.MediumCutoff > c.HighCutoff {
		return fmt.Errorf("medium cutoff %d exceeds high cutoff %d", c.MediumCutoff, c.HighCutoff)
	}
	return nil
}

func (c *Config) sortedTiers() []AmountTier {
	tiers := append([]AmountTier(nil), c.AmountTiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Over.GreaterThan(tiers[j].Over)
	})
	return tiers
}
