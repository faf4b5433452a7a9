// Package money turns carrier prices quoted in minor currency units into
// display amounts.
package money

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeAmount is returned when a price or fee is below zero.
var ErrNegativeAmount = errors.New("amounts in minor units must be non-negative")

const minorUnitExponent = -2

// Money is an amount in a currency's major unit.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// Normalize converts a raw carrier price and a handling fee, both in minor
// units, into the display amount (raw + fee) / 100.
func Normalize(raw, handlingFee int64, currency string) (Money, error) {
	if raw < 0 || handlingFee < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{
		Amount:   decimal.New(raw, minorUnitExponent).Add(decimal.New(handlingFee, minorUnitExponent)),
		Currency: currency,
	}, nil
}

// String renders the amount with two decimals.
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// MinorUnits returns the amount in minor units.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.String(), Currency: m.Currency})
}
