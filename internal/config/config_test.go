package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

var envKeys = []string{
	"PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SHIPPING_UNITS", "UNIT_MULTIPLIER", "HANDLING_FEE", "CURRENCY",
	"CARRIER_MODE", "USPS_ENDPOINT", "USPS_USER_ID", "USPS_TIMEOUT",
	"CACHE_BACKEND", "CACHE_TTL", "REDIS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
	def := settings.Default()
	if cfg.Shipping.Units != def.Units || !cfg.Shipping.UnitMultiplier.Equal(def.UnitMultiplier) || cfg.Shipping.HandlingFee != 0 || cfg.Shipping.Currency != "USD" {
		t.Fatalf("unexpected default shipping settings: %+v", cfg.Shipping)
	}
	if cfg.Carrier.Mode != CarrierStatic || len(cfg.Carrier.StaticQuotes) == 0 || len(cfg.Carrier.StaticInternationalQuotes) == 0 {
		t.Fatalf("expected static carrier with a rate sheet, got %+v", cfg.Carrier)
	}
	if cfg.Cache.Backend != CacheMemory {
		t.Fatalf("expected memory cache, got %s", cfg.Cache.Backend)
	}
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("SHIPPING_UNITS", "Metric")
	t.Setenv("UNIT_MULTIPLIER", "1.5")
	t.Setenv("HANDLING_FEE", "100")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("CARRIER_MODE", "usps")
	t.Setenv("USPS_USER_ID", "abc")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.Shipping.Units != units.Metric {
		t.Fatalf("expected metric units, got %s", cfg.Shipping.Units)
	}
	if cfg.Shipping.UnitMultiplier.String() != "1.5" {
		t.Fatalf("unexpected multiplier %s", cfg.Shipping.UnitMultiplier)
	}
	if cfg.Shipping.HandlingFee != 100 || cfg.Shipping.Currency != "EUR" {
		t.Fatalf("unexpected shipping settings: %+v", cfg.Shipping)
	}
	if cfg.Carrier.Mode != CarrierUSPS || cfg.Carrier.UserID != "abc" {
		t.Fatalf("unexpected carrier config: %+v", cfg.Carrier)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("unexpected cache ttl %s", cfg.Cache.TTL)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
port: "7000"
enable_request_logging: false
rate_limit:
  rps: 0
shipping:
  units: metric
  handling_fee: 50
carrier:
  static_quotes:
    - service_code: "3"
      service_name: Priority Mail Express
      price: 1200
  static_international_quotes:
    - service_code: "1"
      price: 6000
cache:
  backend: none
`)
	t.Setenv("HANDLING_FEE", "75")

	port := "7100"
	unitSystem := "imperial"
	cfg, err := Load(&CLIOverrides{ConfigFile: path, Port: &port, Units: &unitSystem})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "7100" {
		t.Fatalf("expected CLI port, got %s", cfg.Port)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging disabled by YAML")
	}
	if cfg.RateLimitRPS != 0 {
		t.Fatalf("expected YAML to disable rate limiting, got %v", cfg.RateLimitRPS)
	}
	if cfg.Shipping.Units != units.Imperial {
		t.Fatalf("expected CLI units to win, got %s", cfg.Shipping.Units)
	}
	if cfg.Shipping.HandlingFee != 75 {
		t.Fatalf("expected environment fee to override YAML, got %d", cfg.Shipping.HandlingFee)
	}
	if len(cfg.Carrier.StaticQuotes) != 1 || cfg.Carrier.StaticQuotes[0].Price != 1200 {
		t.Fatalf("unexpected static quotes: %+v", cfg.Carrier.StaticQuotes)
	}
	if len(cfg.Carrier.StaticInternationalQuotes) != 1 || cfg.Carrier.StaticInternationalQuotes[0].Price != 6000 {
		t.Fatalf("unexpected international static quotes: %+v", cfg.Carrier.StaticInternationalQuotes)
	}
	if cfg.Cache.Backend != CacheNone {
		t.Fatalf("expected cache disabled, got %s", cfg.Cache.Backend)
	}
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{name: "unknown units", env: map[string]string{"SHIPPING_UNITS": "stones"}, wantErr: units.ErrInvalidUnitKind},
		{name: "zero multiplier", env: map[string]string{"UNIT_MULTIPLIER": "0"}, wantErr: settings.ErrInvalidSettings},
		{name: "unparseable multiplier", env: map[string]string{"UNIT_MULTIPLIER": "abc"}, wantErr: units.ErrInvalidMultiplier},
		{name: "negative fee", env: map[string]string{"HANDLING_FEE": "-1"}, wantErr: settings.ErrInvalidSettings},
		{name: "usps without user id", env: map[string]string{"CARRIER_MODE": "usps"}, wantErr: ErrInvalidConfig},
		{name: "unknown carrier", env: map[string]string{"CARRIER_MODE": "fedex"}, wantErr: ErrInvalidConfig},
		{name: "redis without address", env: map[string]string{"CACHE_BACKEND": "redis"}, wantErr: ErrInvalidConfig},
		{name: "unknown cache", env: map[string]string{"CACHE_BACKEND": "disk"}, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(nil); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	clearEnv(t)

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfigFile(t, "write_timeout: soon\n")
		if _, err := Load(&CLIOverrides{ConfigFile: path}); err == nil {
			t.Fatalf("expected error for invalid duration")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
}
