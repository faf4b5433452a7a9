package carrier

import "errors"

var (
	// ErrCarrierUnavailable is returned on transport or authentication failures, carrier-reported
	// errors and cancelled or timed out lookups.
	ErrCarrierUnavailable = errors.New("carrier unavailable")
	// ErrMalformedResponse is returned when the carrier answered but its quotes could not be parsed.
	ErrMalformedResponse = errors.New("malformed carrier response")
)
