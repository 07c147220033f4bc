package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
)

var scoredAt = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func txnAt(ts time.Time, amount int64) domain.Transaction {
	return domain.Transaction{
		ID:         "TXN100001",
		Timestamp:  ts,
		CustomerID: "CUST-1",
		Platform:   domain.PlatformMobileMoney,
		Amount:     decimal.NewFromInt(amount),
		Status:     domain.StatusSuccess,
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestScore_FloorCase(t *testing.T) {
	s := newTestScorer(t)

	got, err := s.Score(txnAt(scoredAt, 250), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, domain.SeverityLow, got.Severity)
	assert.Empty(t, got.TriggeredRules)
}

func TestScore_AmountTiers(t *testing.T) {
	s := newTestScorer(t)

	tests := []struct {
		amount int64
		want   int
	}{
		{amount: 1000, want: 0},
		{amount: 1001, want: 5},
		{amount: 2500, want: 10},
		{amount: 5000, want: 10},
		{amount: 6000, want: 20},
	}
	for _, tt := range tests {
		got, err := s.Score(txnAt(scoredAt, tt.amount), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Score, "amount %d", tt.amount)
	}
}

func TestScore_ElevatedBand(t *testing.T) {
	s := newTestScorer(t)

	night, err := s.Score(txnAt(time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC), 250), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, night.Score)

	lastHour, err := s.Score(txnAt(time.Date(2024, 3, 4, 5, 59, 0, 0, time.UTC), 250), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, lastHour.Score)

	morning, err := s.Score(txnAt(time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 250), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, morning.Score)
}

func TestScore_ElevatedBandUsesConfiguredLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("WAT", 3600)
	s, err := NewScorer(cfg)
	require.NoError(t, err)

	// 23:30 UTC is 00:30 local.
	got, err := s.Score(txnAt(time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC), 250), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Score)
}

func TestScore_ClampsToHundred(t *testing.T) {
	s := newTestScorer(t)
	ts := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

	profile := &domain.CustomerProfile{
		CustomerID:   "CUST-1",
		TxnCount:     4,
		AmountTotal:  decimal.NewFromInt(400),
		KnownDevices: []string{"DEV1"},
		LastLocation: "Accra",
		LastSeenAt:   ts.Add(-30 * time.Minute),
	}
	for i := 1; i <= 5; i++ {
		profile.Recent = append(profile.Recent, domain.Observation{
			TransactionID: "PREV" + string(rune('0'+i)),
			At:            ts.Add(-time.Duration(i) * time.Minute),
		})
	}

	txn := txnAt(ts, 6000)
	txn.Location = "Lagos"
	txn.DeviceID = "DEV9"

	got, err := s.Score(txn, profile)
	require.NoError(t, err)
	assert.Equal(t, MaxScore, got.Score)
	assert.Equal(t, domain.SeverityHigh, got.Severity)
	assert.Equal(t, []domain.RuleID{
		domain.RuleVelocity,
		domain.RuleAmountAnomaly,
		domain.RuleGeoAnomaly,
		domain.RuleDeviceNovelty,
	}, got.TriggeredRules)
}

func TestScore_MediumSeverity(t *testing.T) {
	s := newTestScorer(t)
	ts := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	profile := &domain.CustomerProfile{
		CustomerID:   "CUST-1",
		TxnCount:     1,
		AmountTotal:  decimal.NewFromInt(800),
		KnownDevices: []string{"DEV1"},
	}
	txn := txnAt(ts, 2500)
	txn.DeviceID = "DEV2"

	got, err := s.Score(txn, profile)
	require.NoError(t, err)
	// 10 (tier) + 15 (medium anomaly) + 5 (new device) + 10 (night)
	assert.Equal(t, 40, got.Score)
	assert.Equal(t, domain.SeverityMedium, got.Severity)
}

func TestScore_Idempotent(t *testing.T) {
	s := newTestScorer(t)
	profile := &domain.CustomerProfile{
		CustomerID:   "CUST-1",
		TxnCount:     2,
		AmountTotal:  decimal.NewFromInt(200),
		KnownDevices: []string{"DEV1"},
		Recent:       []domain.Observation{{TransactionID: "TXN100001", At: scoredAt}},
	}
	txn := txnAt(scoredAt, 700)
	txn.DeviceID = "DEV3"

	first, err := s.Score(txn, profile)
	require.NoError(t, err)
	second, err := s.Score(txn, profile)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScore_RejectsInvalidTransaction(t *testing.T) {
	s := newTestScorer(t)

	txn := txnAt(scoredAt, 100)
	txn.Amount = decimal.NewFromInt(-1)
	_, err := s.Score(txn, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)

	txn = txnAt(time.Time{}, 100)
	_, err = s.Score(txn, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestScore_ScoreAlwaysInRange(t *testing.T) {
	s := newTestScorer(t)
	for amount := int64(1); amount < 20000; amount += 1777 {
		for hour := 0; hour < 24; hour += 5 {
			ts := time.Date(2024, 3, 4, hour, 0, 0, 0, time.UTC)
			profile := &domain.CustomerProfile{CustomerID: "CUST-1", TxnCount: 1, AmountTotal: decimal.NewFromInt(1)}
			got, err := s.Score(txnAt(ts, amount), profile)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.Score, MinScore)
			assert.LessOrEqual(t, got.Score, MaxScore)
		}
	}
}

func TestClassify(t *testing.T) {
	s := newTestScorer(t)
	assert.Equal(t, domain.SeverityLow, s.Classify(39))
	assert.Equal(t, domain.SeverityMedium, s.Classify(40))
	assert.Equal(t, domain.SeverityMedium, s.Classify(69))
	assert.Equal(t, domain.SeverityHigh, s.Classify(70))
}

func TestNewScorer_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MediumCutoff = 90
	_, err := NewScorer(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.AmountAnomaly.HighPct = decimal.NewFromInt(100)
	_, err = NewScorer(cfg)
	assert.Error(t, err)
}
