package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Base is the reporting currency amounts are normalised into.
const Base = "GHS"

// ratesPerBase maps currency codes to the number of units per 1 GHS.
// Approximate 2024 rates for the corridors the platforms settle in.
var ratesPerBase = map[string]decimal.Decimal{
	"GHS": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("0.0667"),
	"NGN": decimal.RequireFromString("105.4"),
	"KES": decimal.RequireFromString("8.64"),
	"XOF": decimal.RequireFromString("40.2"),
}

// ToBase converts an amount in the given currency into GHS. An empty currency
// is taken to already be GHS.
func ToBase(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate).Round(2), nil
}

// FromBase converts a GHS amount into the given currency.
func FromBase(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

// Rate returns units of currency per 1 GHS.
func Rate(currency string) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = Base
	}
	rate, ok := ratesPerBase[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", currency)
	}
	return rate, nil
}
