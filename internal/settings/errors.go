package settings

import "errors"

var (
	// ErrInvalidSettings indicates the provided shipping settings violate validation rules.
	ErrInvalidSettings = errors.New("invalid shipping settings")
)
