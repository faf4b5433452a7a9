package api

import (
	"errors"
	"net/http"

	"github.com/eugenenazirov/shipping-rates/internal/calculator"
	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

// writeRateError maps pipeline errors onto HTTP responses.
func writeRateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shipment.ErrEmptyOrder),
		errors.Is(err, shipment.ErrInvalidLineItem),
		errors.Is(err, shipment.ErrMissingDestination),
		errors.Is(err, shipment.ErrMissingOrigin):
		writeError(w, http.StatusBadRequest, "Invalid order", err.Error())
	case errors.Is(err, calculator.ErrUnknownMethod):
		writeError(w, http.StatusNotFound, "Unknown shipping method", err.Error())
	case errors.Is(err, carrier.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, "Malformed carrier response", err.Error())
	case errors.Is(err, carrier.ErrCarrierUnavailable):
		writeError(w, http.StatusBadGateway, "Carrier unavailable", err.Error(), "retry the request shortly")
	case errors.Is(err, settings.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
	case errors.Is(err, units.ErrInvalidUnitKind):
		writeError(w, http.StatusInternalServerError, "Invalid unit configuration", err.Error())
	default:
		writeInternalError(w, err)
	}
}
