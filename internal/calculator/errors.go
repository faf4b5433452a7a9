package calculator

import "errors"

var (
	// ErrUnknownMethod is returned when no calculator is registered for a shipping method key.
	ErrUnknownMethod = errors.New("unknown shipping method")
)
