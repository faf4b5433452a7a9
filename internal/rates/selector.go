// Package rates picks the quote matching a calculator's service code.
package rates

import "github.com/eugenenazirov/shipping-rates/internal/carrier"

// Select returns the first quote whose service code equals code exactly.
// A missing code is not an error: ok is false and the caller treats the
// package as unpriceable by that service. When several quotes share the
// code, the first one wins.
func Select(quotes []carrier.RateQuote, code string) (quote carrier.RateQuote, ok bool) {
	for _, q := range quotes {
		if q.ServiceCode == code {
			return q, true
		}
	}
	return carrier.RateQuote{}, false
}
