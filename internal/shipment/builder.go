// Package shipment builds carrier-ready packages from order contents.
package shipment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

// Builder aggregates order line items into a package expressed in the unit
// system a carrier expects.
type Builder struct {
	settings settings.Provider
	target   units.System
}

// NewBuilder creates a Builder reading unit settings from provider and
// producing weights in the target unit system.
func NewBuilder(provider settings.Provider, target units.System) *Builder {
	return &Builder{settings: provider, target: target}
}

// Settings returns the settings snapshot the builder currently reads.
func (b *Builder) Settings() settings.Settings {
	return b.settings.Current()
}

// Build aggregates the order into a single package using the current
// settings.
func (b *Builder) Build(order Order) (Package, error) {
	return b.BuildWith(order, b.settings.Current())
}

// BuildWith aggregates the order using cfg. The total weight is
// Σ(quantity × weight) × multiplier, converted into the target unit system.
func (b *Builder) BuildWith(order Order, cfg settings.Settings) (Package, error) {
	if len(order.LineItems) == 0 {
		return Package{}, ErrEmptyOrder
	}
	if strings.TrimSpace(order.ShipAddress.Country) == "" {
		return Package{}, ErrMissingDestination
	}
	if strings.TrimSpace(order.StockLocation.Country) == "" {
		return Package{}, ErrMissingOrigin
	}

	items := make([]LineItem, len(order.LineItems))
	total := decimal.Zero
	for i, item := range order.LineItems {
		if item.Quantity <= 0 || item.Weight.IsNegative() {
			return Package{}, fmt.Errorf("line item %d: %w", i, ErrInvalidLineItem)
		}
		if item.OrderID == "" {
			item.OrderID = order.ID
		}
		items[i] = item
		total = total.Add(item.Weight.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	weight, err := units.Convert(total, cfg.Units, b.target, cfg.UnitMultiplier)
	if err != nil {
		return Package{}, fmt.Errorf("convert package weight: %w", err)
	}

	return Package{
		OrderID:     order.ID,
		Items:       items,
		Weight:      weight,
		Units:       b.target,
		Origin:      order.StockLocation,
		Destination: order.ShipAddress,
	}, nil
}
