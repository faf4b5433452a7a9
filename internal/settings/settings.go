// Package settings holds the process-wide shipping settings read by the
// package builder and the price normalizer. Updates replace the whole value
// so concurrent readers always observe a consistent snapshot.
package settings

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/shipping-rates/internal/units"
)

const defaultCurrency = "USD"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Settings are the shipping settings applied to every rate computation.
type Settings struct {
	Units          units.System
	UnitMultiplier decimal.Decimal
	// HandlingFee is a flat surcharge in minor currency units.
	HandlingFee int64
	Currency    string
}

// Default returns imperial units, a multiplier of 1, no handling fee and USD.
func Default() Settings {
	return Settings{
		Units:          units.Imperial,
		UnitMultiplier: decimal.NewFromInt(1),
		HandlingFee:    0,
		Currency:       defaultCurrency,
	}
}

// Validate checks s and returns a normalised copy.
func (s Settings) Validate() (Settings, error) {
	if !s.Units.Valid() {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, units.ErrInvalidUnitKind)
	}
	if !s.UnitMultiplier.IsPositive() {
		return Settings{}, fmt.Errorf("%w: unit multiplier must be positive", ErrInvalidSettings)
	}
	if s.HandlingFee < 0 {
		return Settings{}, fmt.Errorf("%w: handling fee must be >= 0", ErrInvalidSettings)
	}

	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		s.Currency = defaultCurrency
	}
	if !currencyPattern.MatchString(s.Currency) {
		return Settings{}, fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidSettings)
	}
	return s, nil
}

// Provider exposes the settings snapshot in effect.
type Provider interface {
	Current() Settings
}

// Store keeps the current settings behind an atomic pointer.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore initialises the store with the default settings.
func NewStore() *Store {
	s := &Store{}
	def := Default()
	s.current.Store(&def)
	return s
}

// Current returns the settings snapshot in effect.
func (s *Store) Current() Settings {
	return *s.current.Load()
}

// Swap validates and installs next, returning the stored value.
func (s *Store) Swap(next Settings) (Settings, error) {
	normalized, err := next.Validate()
	if err != nil {
		return Settings{}, err
	}
	s.current.Store(&normalized)
	return normalized, nil
}

// Static is a Provider returning a fixed snapshot.
type Static Settings

// Current returns the fixed snapshot.
func (s Static) Current() Settings {
	return Settings(s)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the snapshot s.
func NewContext(ctx context.Context, s Settings) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the snapshot stored by NewContext, or the current
// value of fallback when ctx carries none.
func FromContext(ctx context.Context, fallback Provider) Settings {
	if s, ok := ctx.Value(contextKey{}).(Settings); ok {
		return s
	}
	return fallback.Current()
}
