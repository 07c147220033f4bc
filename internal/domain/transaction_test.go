package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validTxn() Transaction {
	return Transaction{
		ID:         "TXN000001",
		Timestamp:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		CustomerID: "CUST-1",
		Platform:   PlatformMobileMoney,
		Amount:     decimal.NewFromInt(250),
		Status:     StatusSuccess,
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{name: "valid transaction passes", mutate: func(*Transaction) {}},
		{name: "missing id", mutate: func(tx *Transaction) { tx.ID = " " }, wantErr: true},
		{name: "missing customer", mutate: func(tx *Transaction) { tx.CustomerID = "" }, wantErr: true},
		{name: "zero timestamp", mutate: func(tx *Transaction) { tx.Timestamp = time.Time{} }, wantErr: true},
		{name: "negative amount", mutate: func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, wantErr: true},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = decimal.Zero }, wantErr: true},
		{name: "unknown platform", mutate: func(tx *Transaction) { tx.Platform = "carrier_pigeon" }, wantErr: true},
		{name: "unknown status", mutate: func(tx *Transaction) { tx.Status = "reversed" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTxn()
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransaction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("Mobile Money")
	assert.NoError(t, err)
	assert.Equal(t, PlatformMobileMoney, p)

	p, err = ParsePlatform("internet-banking")
	assert.NoError(t, err)
	assert.Equal(t, PlatformInternetBanking, p)

	_, err = ParsePlatform("crypto")
	assert.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestCustomerProfile_AverageAmount(t *testing.T) {
	var nilProfile *CustomerProfile
	_, ok := nilProfile.AverageAmount()
	assert.False(t, ok)

	empty := &CustomerProfile{CustomerID: "C1"}
	_, ok = empty.AverageAmount()
	assert.False(t, ok)

	p := &CustomerProfile{CustomerID: "C1", TxnCount: 4, AmountTotal: decimal.NewFromInt(400)}
	avg, ok := p.AverageAmount()
	assert.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(100)))
}

func TestCustomerProfile_CloneIsIndependent(t *testing.T) {
	p := &CustomerProfile{CustomerID: "C1", KnownDevices: []string{"DEV1"}}
	c := p.Clone()
	c.KnownDevices[0] = "DEV2"
	assert.True(t, p.HasDevice("DEV1"))
	assert.False(t, p.HasDevice("DEV2"))
}
