package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
)

func observationsAt(t time.Time, minutesAgo ...int) []domain.Observation {
	obs := make([]domain.Observation, 0, len(minutesAgo))
	for i, m := range minutesAgo {
		obs = append(obs, domain.Observation{
			TransactionID: "OBS" + string(rune('A'+i)),
			At:            t.Add(-time.Duration(m) * time.Minute),
		})
	}
	return obs
}

func TestVelocityCheck_WindowBoundary(t *testing.T) {
	rule := VelocityRule{Enabled: true, Window: 10 * time.Minute, Threshold: 5}
	txn := txnAt(scoredAt, 100)

	t.Run("five inside and one outside fires", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 9, 7, 5, 3, 1, 11)}
		assert.Equal(t, 5, VelocityCount(profile, txn, rule.Window))

		sig := VelocityCheck(rule, txn, profile)
		require.NotNil(t, sig)
		assert.Equal(t, domain.RuleVelocity, sig.Rule)
		assert.Equal(t, domain.SeverityHigh, sig.Severity)
	})

	t.Run("exactly at window start is counted", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 10, 8, 6, 4, 2)}
		assert.Equal(t, 5, VelocityCount(profile, txn, rule.Window))
		assert.NotNil(t, VelocityCheck(rule, txn, profile))
	})

	t.Run("just past window start is not counted", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 8, 6, 4, 2)}
		profile.Recent = append(profile.Recent, domain.Observation{
			TransactionID: "EDGE",
			At:            scoredAt.Add(-10*time.Minute - time.Second),
		})
		assert.Equal(t, 4, VelocityCount(profile, txn, rule.Window))
		assert.Nil(t, VelocityCheck(rule, txn, profile))
	})

	t.Run("own observation is ignored", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 4, 3, 2, 1)}
		profile.Recent = append(profile.Recent, domain.Observation{TransactionID: txn.ID, At: scoredAt})
		assert.Equal(t, 4, VelocityCount(profile, txn, rule.Window))
	})

	t.Run("later transactions are not counted", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 4, 3, 2, 1, -1)}
		assert.Equal(t, 4, VelocityCount(profile, txn, rule.Window))
	})

	t.Run("disabled or missing profile never fires", func(t *testing.T) {
		profile := &domain.CustomerProfile{Recent: observationsAt(scoredAt, 5, 4, 3, 2, 1)}
		assert.Nil(t, VelocityCheck(VelocityRule{Window: rule.Window, Threshold: 5}, txn, profile))
		assert.Nil(t, VelocityCheck(rule, txn, nil))
	})
}

func TestAmountAnomalyCheck(t *testing.T) {
	rule := DefaultConfig().AmountAnomaly
	profile := &domain.CustomerProfile{TxnCount: 4, AmountTotal: decimal.NewFromInt(400)}

	tests := []struct {
		name   string
		amount int64
		want   domain.Severity
	}{
		{name: "below threshold", amount: 299},
		{name: "exactly 200 percent is medium", amount: 300, want: domain.SeverityMedium},
		{name: "exactly 300 percent is high", amount: 400, want: domain.SeverityHigh},
		{name: "far above is high", amount: 5000, want: domain.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := AmountAnomalyCheck(rule, txnAt(scoredAt, tt.amount), profile)
			if tt.want == "" {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tt.want, sig.Severity)
		})
	}
}

func TestAmountAnomalyCheck_NoHistory(t *testing.T) {
	rule := DefaultConfig().AmountAnomaly
	txn := txnAt(scoredAt, 10000)

	assert.NotPanics(t, func() {
		assert.Nil(t, AmountAnomalyCheck(rule, txn, nil))
		assert.Nil(t, AmountAnomalyCheck(rule, txn, &domain.CustomerProfile{}))
		assert.Nil(t, AmountAnomalyCheck(rule, txn, &domain.CustomerProfile{TxnCount: 3, AmountTotal: decimal.Zero}))
	})
}

func TestGeoAnomalyCheck(t *testing.T) {
	rule := GeoRule{Enabled: true, MinTravelTime: 2 * time.Hour}
	txn := txnAt(scoredAt, 100)
	txn.Location = "Lagos"

	t.Run("impossible travel fires high", func(t *testing.T) {
		profile := &domain.CustomerProfile{LastLocation: "Accra", LastSeenAt: scoredAt.Add(-time.Hour)}
		sig := GeoAnomalyCheck(rule, txn, profile)
		require.NotNil(t, sig)
		assert.Equal(t, domain.SeverityHigh, sig.Severity)
	})

	t.Run("enough elapsed time does not fire", func(t *testing.T) {
		profile := &domain.CustomerProfile{LastLocation: "Accra", LastSeenAt: scoredAt.Add(-2 * time.Hour)}
		assert.Nil(t, GeoAnomalyCheck(rule, txn, profile))
	})

	t.Run("same location ignoring case", func(t *testing.T) {
		profile := &domain.CustomerProfile{LastLocation: " lagos", LastSeenAt: scoredAt.Add(-time.Minute)}
		assert.Nil(t, GeoAnomalyCheck(rule, txn, profile))
	})

	t.Run("unknown previous location", func(t *testing.T) {
		assert.Nil(t, GeoAnomalyCheck(rule, txn, &domain.CustomerProfile{}))
		assert.Nil(t, GeoAnomalyCheck(rule, txn, nil))
	})

	t.Run("unknown current location", func(t *testing.T) {
		profile := &domain.CustomerProfile{LastLocation: "Accra", LastSeenAt: scoredAt.Add(-time.Minute)}
		assert.Nil(t, GeoAnomalyCheck(rule, txnAt(scoredAt, 100), profile))
	})
}

func TestDeviceNoveltyCheck(t *testing.T) {
	rule := DeviceRule{Enabled: true}
	profile := &domain.CustomerProfile{KnownDevices: []string{"DEV1"}}

	txn := txnAt(scoredAt, 100)
	txn.DeviceID = "DEV2"
	sig := DeviceNoveltyCheck(rule, txn, profile)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SeverityLow, sig.Severity)

	txn.DeviceID = "DEV1"
	assert.Nil(t, DeviceNoveltyCheck(rule, txn, profile))

	txn.DeviceID = ""
	assert.Nil(t, DeviceNoveltyCheck(rule, txn, profile))

	txn.DeviceID = "DEV2"
	assert.Nil(t, DeviceNoveltyCheck(rule, txn, nil))
}

func TestTimeBand_Contains(t *testing.T) {
	night := TimeBand{StartHour: 0, EndHour: 6}
	assert.True(t, night.Contains(0))
	assert.True(t, night.Contains(5))
	assert.False(t, night.Contains(6))

	wrap := TimeBand{StartHour: 22, EndHour: 4}
	assert.True(t, wrap.Contains(23))
	assert.True(t, wrap.Contains(3))
	assert.False(t, wrap.Contains(12))

	assert.False(t, TimeBand{StartHour: 3, EndHour: 3}.Contains(3))
}
