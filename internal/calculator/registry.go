package calculator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/money"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
)

// MethodRate is a priced shipping method.
type MethodRate struct {
	Method Variant
	Price  money.Money
}

// Registry holds one calculator per shipping method key.
type Registry struct {
	calculators []Calculator
	byKey       map[string]Calculator
}

// NewRegistry indexes calculators by their variant key. When two calculators
// share a key the first one is kept.
func NewRegistry(calcs ...Calculator) *Registry {
	r := &Registry{byKey: make(map[string]Calculator, len(calcs))}
	for _, c := range calcs {
		key := c.Variant().Key
		if _, exists := r.byKey[key]; exists {
			continue
		}
		r.byKey[key] = c
		r.calculators = append(r.calculators, c)
	}
	return r
}

// NewCarrierRegistry registers one calculator per variant, all quoting
// through client.
func NewCarrierRegistry(client carrier.RateClient, provider settings.Provider, logger *zap.Logger, variants []Variant) *Registry {
	calcs := make([]Calculator, 0, len(variants))
	for _, v := range variants {
		calcs = append(calcs, New(client, v, provider, logger))
	}
	return NewRegistry(calcs...)
}

// Get returns the calculator registered for key.
func (r *Registry) Get(key string) (Calculator, error) {
	c, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, key)
	}
	return c, nil
}

// Methods lists the registered shipping methods in registration order.
func (r *Registry) Methods() []Variant {
	out := make([]Variant, 0, len(r.calculators))
	for _, c := range r.calculators {
		out = append(out, c.Variant())
	}
	return out
}

// ComputeAll prices pkg with every available method concurrently. Methods
// the carrier does not quote are left out. Any failure fails the whole call.
func (r *Registry) ComputeAll(ctx context.Context, pkg shipment.Package) ([]MethodRate, error) {
	type result struct {
		price money.Money
		ok    bool
	}

	results := make([]result, len(r.calculators))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.calculators {
		if !c.Available(pkg) {
			continue
		}
		g.Go(func() error {
			price, ok, err := c.Compute(gctx, pkg)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Variant().Key, err)
			}
			results[i] = result{price: price, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]MethodRate, 0, len(results))
	for i, res := range results {
		if !res.ok {
			continue
		}
		out = append(out, MethodRate{Method: r.calculators[i].Variant(), Price: res.price})
	}
	return out, nil
}
