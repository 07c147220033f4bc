package profile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func txn(id string, at time.Time, amount int64) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		Timestamp:  at,
		CustomerID: "CUST-1",
		Platform:   domain.PlatformBank,
		Amount:     decimal.NewFromInt(amount),
		Status:     domain.StatusSuccess,
	}
}

func TestObserve_NewProfile(t *testing.T) {
	tx := txn("T1", t0, 150)
	tx.DeviceID = "DEV1"
	tx.Location = "Accra"

	p := Observe(nil, tx, time.Hour)
	require.NotNil(t, p)
	assert.Equal(t, "CUST-1", p.CustomerID)
	assert.Equal(t, 1, p.TxnCount)
	assert.True(t, p.AmountTotal.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, []string{"DEV1"}, p.KnownDevices)
	assert.Equal(t, "Accra", p.LastLocation)
	assert.Equal(t, t0, p.LastSeenAt)
	assert.Len(t, p.Recent, 1)
}

func TestObserve_DoesNotMutateInput(t *testing.T) {
	base := Observe(nil, txn("T1", t0, 100), time.Hour)
	next := Observe(base, txn("T2", t0.Add(time.Minute), 300), time.Hour)

	assert.Equal(t, 1, base.TxnCount)
	assert.Len(t, base.Recent, 1)
	assert.Equal(t, 2, next.TxnCount)

	avg, ok := next.AverageAmount()
	require.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(200)))
}

func TestObserve_SameTransactionTwice(t *testing.T) {
	p := Observe(nil, txn("T1", t0, 100), time.Hour)
	again := Observe(p, txn("T1", t0, 100), time.Hour)
	assert.Equal(t, p, again)
}

func TestObserve_PrunesOutsideRetention(t *testing.T) {
	p := Observe(nil, txn("T1", t0, 100), 30*time.Minute)
	p = Observe(p, txn("T2", t0.Add(20*time.Minute), 100), 30*time.Minute)
	p = Observe(p, txn("T3", t0.Add(45*time.Minute), 100), 30*time.Minute)

	ids := make([]string, 0, len(p.Recent))
	for _, o := range p.Recent {
		ids = append(ids, o.TransactionID)
	}
	assert.Equal(t, []string{"T2", "T3"}, ids)
	assert.Equal(t, 3, p.TxnCount)
}

func TestObserve_PrunedIDIsNotRemembered(t *testing.T) {
	p := Observe(nil, txn("T1", t0, 100), time.Hour)
	p = Observe(p, txn("T2", t0.Add(2*time.Hour), 100), time.Hour)
	require.Len(t, p.Recent, 1)

	// T1 has left the window, so the duplicate check no longer sees it.
	p = Observe(p, txn("T1", t0, 100), time.Hour)
	assert.Equal(t, 3, p.TxnCount)
}

func TestObserve_LateArrivalKeepsLastLocation(t *testing.T) {
	first := txn("T1", t0, 100)
	first.Location = "Kumasi"
	p := Observe(nil, first, time.Hour)

	late := txn("T0", t0.Add(-10*time.Minute), 100)
	late.Location = "Accra"
	p = Observe(p, late, time.Hour)

	assert.Equal(t, "Kumasi", p.LastLocation)
	assert.Equal(t, t0, p.LastSeenAt)
	assert.Equal(t, "T0", p.Recent[0].TransactionID)
}
