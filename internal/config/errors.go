package config

import "errors"

// ErrInvalidConfig is returned when the resolved configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")
