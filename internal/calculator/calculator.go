// Package calculator prices a package for one shipping method by querying a
// carrier, selecting the quote for the method's service code and applying
// the configured handling fee.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/metrics"
	"github.com/eugenenazirov/shipping-rates/internal/money"
	"github.com/eugenenazirov/shipping-rates/internal/rates"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
)

// Calculator describes the behaviour required from a shipping calculator.
type Calculator interface {
	Variant() Variant
	Available(pkg shipment.Package) bool
	// Compute returns the display price for pkg. ok is false when the
	// carrier offers no quote for the method; that is not an error.
	Compute(ctx context.Context, pkg shipment.Package) (price money.Money, ok bool, err error)
}

type rateCalculator struct {
	carrier  carrier.RateClient
	variant  Variant
	settings settings.Provider
	logger   *zap.Logger
}

// New creates a Calculator for variant backed by client.
func New(client carrier.RateClient, variant Variant, provider settings.Provider, logger *zap.Logger) Calculator {
	return &rateCalculator{
		carrier:  client,
		variant:  variant,
		settings: provider,
		logger:   logger,
	}
}

func (c *rateCalculator) Variant() Variant {
	return c.variant
}

func (c *rateCalculator) Available(pkg shipment.Package) bool {
	return pkg.International() == c.variant.International
}

func (c *rateCalculator) Compute(ctx context.Context, pkg shipment.Package) (money.Money, bool, error) {
	if !c.Available(pkg) {
		metrics.RecordRateComputation(c.variant.Key, metrics.OutcomeUnavailable)
		return money.Money{}, false, nil
	}

	start := time.Now()
	resp, err := c.carrier.FindRates(ctx, pkg)
	metrics.RecordCarrierLookup(c.carrier.Name(), time.Since(start), err)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty rate response", carrier.ErrMalformedResponse)
	}
	if err != nil {
		err = classify(err)
		c.logger.Warn("carrier rate lookup failed",
			zap.String("carrier", c.carrier.Name()),
			zap.String("method", c.variant.Key),
			zap.Error(err),
		)
		metrics.RecordRateComputation(c.variant.Key, metrics.OutcomeError)
		return money.Money{}, false, err
	}

	code := carrier.ResolveServiceCode(c.carrier, c.variant.ServiceCode)
	quote, ok := rates.Select(resp.Quotes, code)
	if !ok {
		c.logger.Debug("service code not quoted",
			zap.String("method", c.variant.Key),
			zap.String("service_code", code),
			zap.Int("quotes", len(resp.Quotes)),
		)
		metrics.RecordRateComputation(c.variant.Key, metrics.OutcomeUnavailable)
		return money.Money{}, false, nil
	}

	cfg := settings.FromContext(ctx, c.settings)
	price, err := money.Normalize(quote.Price, cfg.HandlingFee, cfg.Currency)
	if err != nil {
		metrics.RecordRateComputation(c.variant.Key, metrics.OutcomeError)
		return money.Money{}, false, fmt.Errorf("%w: quote %s: %w", carrier.ErrMalformedResponse, quote.ServiceCode, err)
	}

	metrics.RecordRateComputation(c.variant.Key, metrics.OutcomePriced)
	return price, true, nil
}

// classify keeps carrier errors recognisable and reports anything else,
// including cancellation and timeouts, as the carrier being unavailable.
func classify(err error) error {
	if errors.Is(err, carrier.ErrCarrierUnavailable) || errors.Is(err, carrier.ErrMalformedResponse) {
		return err
	}
	return fmt.Errorf("%w: %w", carrier.ErrCarrierUnavailable, err)
}
