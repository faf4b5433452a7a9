// Package carrier defines the rate lookup capability the calculator depends
// on, together with the concrete carrier clients.
package carrier

import (
	"context"

	"github.com/eugenenazirov/shipping-rates/internal/shipment"
)

// RateQuote is a single priced service offered by a carrier.
type RateQuote struct {
	ServiceCode string `json:"serviceCode"`
	ServiceName string `json:"serviceName,omitempty"`
	// Price is expressed in minor currency units.
	Price int64 `json:"price"`
}

// RateResponse carries the quotes returned for a package and any opaque
// metadata the carrier attached.
type RateResponse struct {
	Quotes []RateQuote       `json:"quotes"`
	Params map[string]string `json:"params,omitempty"`
}

// Clone returns a deep copy of r.
func (r *RateResponse) Clone() *RateResponse {
	if r == nil {
		return nil
	}
	out := &RateResponse{}
	if r.Quotes != nil {
		out.Quotes = make([]RateQuote, len(r.Quotes))
		copy(out.Quotes, r.Quotes)
	}
	if r.Params != nil {
		out.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return out
}

// RateClient looks up rate quotes for a package.
type RateClient interface {
	Name() string
	FindRates(ctx context.Context, pkg shipment.Package) (*RateResponse, error)
}

// ServiceCodeResolver is implemented by clients whose quotes use raw service
// codes that differ from the identifiers calculators are configured with.
type ServiceCodeResolver interface {
	ResolveServiceCode(code string) string
}

// ServiceCodeTable maps calculator service identifiers to raw carrier codes.
type ServiceCodeTable map[string]string

// Resolve returns the raw code for code. Identifiers missing from the table
// are returned unchanged.
func (t ServiceCodeTable) Resolve(code string) string {
	if raw, ok := t[code]; ok {
		return raw
	}
	return code
}

// ResolveServiceCode maps code through the client's table when it has one.
func ResolveServiceCode(client RateClient, code string) string {
	if r, ok := client.(ServiceCodeResolver); ok {
		return r.ResolveServiceCode(code)
	}
	return code
}
