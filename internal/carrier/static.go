package carrier

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/eugenenazirov/shipping-rates/internal/shipment"
)

// Static is an in-memory RateClient answering from a fixed rate sheet, or
// with Err when set. Domestic packages are quoted from Quotes and packages
// crossing a border from InternationalQuotes, so raw codes shared by both
// sheets never leak across.
type Static struct {
	CarrierName         string
	Quotes              []RateQuote
	InternationalQuotes []RateQuote
	Params              map[string]string
	Err                 error
	Codes               ServiceCodeTable

	calls atomic.Int64
}

// NewStatic creates a Static client returning quotes for domestic packages.
func NewStatic(name string, codes ServiceCodeTable, quotes ...RateQuote) *Static {
	return &Static{CarrierName: name, Codes: codes, Quotes: quotes}
}

// WithInternational sets the quotes returned for international packages.
func (s *Static) WithInternational(quotes ...RateQuote) *Static {
	s.InternationalQuotes = quotes
	return s
}

// Name returns the configured carrier name.
func (s *Static) Name() string {
	if s.CarrierName == "" {
		return "static"
	}
	return s.CarrierName
}

// FindRates returns a copy of the rate sheet matching the package scope.
func (s *Static) FindRates(ctx context.Context, pkg shipment.Package) (*RateResponse, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCarrierUnavailable, err)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	quotes := s.Quotes
	if pkg.International() {
		quotes = s.InternationalQuotes
	}
	resp := &RateResponse{Quotes: quotes, Params: s.Params}
	return resp.Clone(), nil
}

// ResolveServiceCode maps code through the configured table.
func (s *Static) ResolveServiceCode(code string) string {
	return s.Codes.Resolve(code)
}

// Calls reports how many lookups were made.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}
