package shipment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/shipping-rates/internal/units"
)

// Address is the destination a shipment is sent to.
type Address struct {
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zipcode  string `json:"zipcode,omitempty"`
	Country  string `json:"country"`
}

// StockLocation is the warehouse a shipment leaves from.
type StockLocation struct {
	Name     string `json:"name,omitempty"`
	Address1 string `json:"address1,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zipcode  string `json:"zipcode,omitempty"`
	Country  string `json:"country"`
}

// LineItem is a single order line. Weight is the weight of one unit in the
// configured unit system.
type LineItem struct {
	OrderID  string          `json:"orderId,omitempty"`
	SKU      string          `json:"sku,omitempty"`
	Quantity int             `json:"quantity"`
	Weight   decimal.Decimal `json:"weight"`
}

// Order is the read-only view of an order the builder consumes.
type Order struct {
	ID            string        `json:"id,omitempty"`
	LineItems     []LineItem    `json:"lineItems"`
	ShipAddress   Address       `json:"shipAddress"`
	StockLocation StockLocation `json:"stockLocation"`
}

// Package is a carrier-ready shipment built from an order.
type Package struct {
	OrderID     string
	Items       []LineItem
	Weight      decimal.Decimal
	Units       units.System
	Origin      StockLocation
	Destination Address
}

// International reports whether the package crosses a border. Built
// packages always carry both country codes.
func (p Package) International() bool {
	return !strings.EqualFold(strings.TrimSpace(p.Origin.Country), strings.TrimSpace(p.Destination.Country))
}

// Fingerprint returns a stable digest of everything that influences a rate
// lookup for the package.
func (p Package) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "units=%s;weight=%s;", p.Units, p.Weight.String())
	fmt.Fprintf(h, "origin=%s|%s|%s|%s;", p.Origin.Country, p.Origin.State, p.Origin.City, p.Origin.Zipcode)
	fmt.Fprintf(h, "dest=%s|%s|%s|%s;", p.Destination.Country, p.Destination.State, p.Destination.City, p.Destination.Zipcode)
	for _, item := range p.Items {
		fmt.Fprintf(h, "item=%s|%d|%s;", item.SKU, item.Quantity, item.Weight.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}
