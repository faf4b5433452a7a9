package units

import "errors"

var (
	// ErrInvalidUnitKind is returned when a unit system is not imperial or metric.
	ErrInvalidUnitKind = errors.New("unit system must be either imperial or metric")
	// ErrInvalidMultiplier is returned when the weight multiplier is zero or negative.
	ErrInvalidMultiplier = errors.New("unit multiplier must be a positive number")
)
