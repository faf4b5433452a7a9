package shipment

import "errors"

var (
	// ErrEmptyOrder is returned when an order has no shippable line items.
	ErrEmptyOrder = errors.New("order has no shippable items")
	// ErrInvalidLineItem is returned when a line item has a non-positive quantity or a negative weight.
	ErrInvalidLineItem = errors.New("line item quantity must be positive and weight non-negative")
	// ErrMissingDestination is returned when the ship address carries no country code.
	ErrMissingDestination = errors.New("ship address must include a country code")
	// ErrMissingOrigin is returned when the stock location carries no country code.
	ErrMissingOrigin = errors.New("stock location must include a country code")
)
