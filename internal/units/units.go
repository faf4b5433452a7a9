// Package units converts stored weights between the imperial (ounces) and
// metric (grams) unit systems.
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// System identifies the unit system weights are expressed in.
type System string

const (
	// Imperial weights are expressed in ounces.
	Imperial System = "imperial"
	// Metric weights are expressed in grams.
	Metric System = "metric"
)

var gramsPerOunce = decimal.RequireFromString("28.349523125")

// Parse resolves a configured unit system name. Matching ignores case and
// surrounding whitespace.
func Parse(raw string) (System, error) {
	s := System(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnitKind, raw)
	}
	return s, nil
}

// Valid reports whether s is a supported unit system.
func (s System) Valid() bool {
	return s == Imperial || s == Metric
}

// WeightUnit returns the symbol of the weight unit used by the system.
func (s System) WeightUnit() string {
	switch s {
	case Imperial:
		return "oz"
	case Metric:
		return "g"
	default:
		return ""
	}
}

// Convert expresses weight, stored in the from system, in the to system and
// scales the result by multiplier.
func Convert(weight decimal.Decimal, from, to System, multiplier decimal.Decimal) (decimal.Decimal, error) {
	if !from.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidUnitKind, string(from))
	}
	if !to.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidUnitKind, string(to))
	}
	if !multiplier.IsPositive() {
		return decimal.Zero, ErrInvalidMultiplier
	}

	converted := weight
	switch {
	case from == Imperial && to == Metric:
		converted = weight.Mul(gramsPerOunce)
	case from == Metric && to == Imperial:
		converted = weight.Div(gramsPerOunce)
	}

	return converted.Mul(multiplier), nil
}

// ToOunces expresses weight in ounces.
func ToOunces(weight decimal.Decimal, from System) (decimal.Decimal, error) {
	return Convert(weight, from, Imperial, decimal.NewFromInt(1))
}

// ToGrams expresses weight in grams.
func ToGrams(weight decimal.Decimal, from System) (decimal.Decimal, error) {
	return Convert(weight, from, Metric, decimal.NewFromInt(1))
}
