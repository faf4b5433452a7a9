package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Carrier modes.
const (
	CarrierUSPS   = "usps"
	CarrierStatic = "static"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Shipping             settings.Settings
	Carrier              CarrierConfig
	Cache                CacheConfig
}

// CarrierConfig selects and configures the carrier rate client.
type CarrierConfig struct {
	Mode           string
	Endpoint       string
	UserID         string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	// StaticQuotes and StaticInternationalQuotes are the domestic and
	// international rate sheets served in static carrier mode.
	StaticQuotes              []carrier.RateQuote
	StaticInternationalQuotes []carrier.RateQuote
}

// CacheConfig configures the carrier response cache.
type CacheConfig struct {
	Backend   string
	TTL       time.Duration
	Capacity  int
	RedisAddr string
}

type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Shipping             yamlShipping  `yaml:"shipping"`
	Carrier              yamlCarrier   `yaml:"carrier"`
	Cache                yamlCache     `yaml:"cache"`
}

type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlShipping struct {
	Units          string `yaml:"units"`
	UnitMultiplier string `yaml:"unit_multiplier"`
	HandlingFee    *int64 `yaml:"handling_fee"`
	Currency       string `yaml:"currency"`
}

type yamlCarrier struct {
	Mode                      string        `yaml:"mode"`
	Endpoint                  string        `yaml:"endpoint"`
	UserID                    string        `yaml:"user_id"`
	Timeout                   string        `yaml:"timeout"`
	RateLimit                 yamlRateLimit `yaml:"rate_limit"`
	StaticQuotes              []yamlQuote   `yaml:"static_quotes"`
	StaticInternationalQuotes []yamlQuote   `yaml:"static_international_quotes"`
}

type yamlQuote struct {
	ServiceCode string `yaml:"service_code"`
	ServiceName string `yaml:"service_name"`
	Price       int64  `yaml:"price"`
}

type yamlCache struct {
	Backend   string `yaml:"backend"`
	TTL       string `yaml:"ttl"`
	Capacity  *int   `yaml:"capacity"`
	RedisAddr string `yaml:"redis_addr"`
}

// CLIOverrides holds command-line flag overrides. Nil fields are not set.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	Units          *string
	UnitMultiplier *string
	HandlingFee    *int64
	Currency       *string
	CarrierMode    *string
	USPSUserID     *string
	CacheBackend   *string
	RedisAddr      *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}

	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, fmt.Errorf("apply flags: %w", err)
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Shipping:             settings.Default(),
		Carrier: CarrierConfig{
			Mode:                      CarrierStatic,
			Endpoint:                  carrier.DefaultUSPSEndpoint,
			Timeout:                   5 * time.Second,
			RateLimitRPS:              10,
			RateLimitBurst:            10,
			StaticQuotes:              DefaultStaticQuotes(),
			StaticInternationalQuotes: DefaultStaticInternationalQuotes(),
		},
		Cache: CacheConfig{
			Backend:  CacheMemory,
			TTL:      5 * time.Minute,
			Capacity: 1024,
		},
	}
}

// DefaultStaticQuotes returns the fixed domestic USPS rate sheet served in
// static mode.
func DefaultStaticQuotes() []carrier.RateQuote {
	return []carrier.RateQuote{
		{ServiceCode: "0", ServiceName: "First-Class Mail", Price: 450},
		{ServiceCode: "1", ServiceName: "Priority Mail", Price: 560},
		{ServiceCode: "3", ServiceName: "Priority Mail Express", Price: 999},
		{ServiceCode: "4", ServiceName: "USPS Retail Ground", Price: 820},
		{ServiceCode: "6", ServiceName: "Media Mail", Price: 380},
		{ServiceCode: "7", ServiceName: "Library Mail", Price: 360},
	}
}

// DefaultStaticInternationalQuotes returns the fixed international USPS rate
// sheet served in static mode. USPS numbers international classes
// independently, so codes overlap with the domestic sheet.
func DefaultStaticInternationalQuotes() []carrier.RateQuote {
	return []carrier.RateQuote{
		{ServiceCode: "1", ServiceName: "Priority Mail Express International", Price: 6195},
		{ServiceCode: "2", ServiceName: "Priority Mail International", Price: 4650},
		{ServiceCode: "15", ServiceName: "First-Class Package International Service", Price: 1625},
	}
}

func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	durations := []struct {
		name   string
		raw    string
		target *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"carrier.timeout", yamlCfg.Carrier.Timeout, &cfg.Carrier.Timeout},
		{"cache.ttl", yamlCfg.Cache.TTL, &cfg.Cache.TTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.target = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if err := applyShipping(&cfg.Shipping, yamlCfg.Shipping.Units, yamlCfg.Shipping.UnitMultiplier, yamlCfg.Shipping.Currency); err != nil {
		return err
	}
	if yamlCfg.Shipping.HandlingFee != nil {
		cfg.Shipping.HandlingFee = *yamlCfg.Shipping.HandlingFee
	}

	if yamlCfg.Carrier.Mode != "" {
		cfg.Carrier.Mode = yamlCfg.Carrier.Mode
	}
	if yamlCfg.Carrier.Endpoint != "" {
		cfg.Carrier.Endpoint = yamlCfg.Carrier.Endpoint
	}
	if yamlCfg.Carrier.UserID != "" {
		cfg.Carrier.UserID = yamlCfg.Carrier.UserID
	}
	if yamlCfg.Carrier.RateLimit.RPS != nil {
		cfg.Carrier.RateLimitRPS = *yamlCfg.Carrier.RateLimit.RPS
	}
	if yamlCfg.Carrier.RateLimit.Burst != nil {
		cfg.Carrier.RateLimitBurst = *yamlCfg.Carrier.RateLimit.Burst
	}
	if len(yamlCfg.Carrier.StaticQuotes) > 0 {
		cfg.Carrier.StaticQuotes = toQuotes(yamlCfg.Carrier.StaticQuotes)
	}
	if len(yamlCfg.Carrier.StaticInternationalQuotes) > 0 {
		cfg.Carrier.StaticInternationalQuotes = toQuotes(yamlCfg.Carrier.StaticInternationalQuotes)
	}

	if yamlCfg.Cache.Backend != "" {
		cfg.Cache.Backend = yamlCfg.Cache.Backend
	}
	if yamlCfg.Cache.Capacity != nil {
		cfg.Cache.Capacity = *yamlCfg.Cache.Capacity
	}
	if yamlCfg.Cache.RedisAddr != "" {
		cfg.Cache.RedisAddr = yamlCfg.Cache.RedisAddr
	}

	return nil
}

func applyEnvConfig(cfg *Config) error {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if err := applyShipping(&cfg.Shipping, env("SHIPPING_UNITS"), env("UNIT_MULTIPLIER"), env("CURRENCY")); err != nil {
		return err
	}
	if fee := env("HANDLING_FEE"); fee != "" {
		value, err := strconv.ParseInt(fee, 10, 64)
		if err != nil {
			return fmt.Errorf("HANDLING_FEE: %w", err)
		}
		cfg.Shipping.HandlingFee = value
	}

	if mode := env("CARRIER_MODE"); mode != "" {
		cfg.Carrier.Mode = mode
	}
	if endpoint := env("USPS_ENDPOINT"); endpoint != "" {
		cfg.Carrier.Endpoint = endpoint
	}
	if userID := env("USPS_USER_ID"); userID != "" {
		cfg.Carrier.UserID = userID
	}
	if timeout := env("USPS_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("USPS_TIMEOUT: %w", err)
		}
		cfg.Carrier.Timeout = d
	}

	if backend := env("CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if ttl := env("CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	if addr := env("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}

	return nil
}

func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if err := applyShipping(&cfg.Shipping, deref(overrides.Units), deref(overrides.UnitMultiplier), deref(overrides.Currency)); err != nil {
		return err
	}
	if overrides.HandlingFee != nil {
		cfg.Shipping.HandlingFee = *overrides.HandlingFee
	}

	if mode := deref(overrides.CarrierMode); mode != "" {
		cfg.Carrier.Mode = mode
	}
	if userID := deref(overrides.USPSUserID); userID != "" {
		cfg.Carrier.UserID = userID
	}
	if backend := deref(overrides.CacheBackend); backend != "" {
		cfg.Cache.Backend = backend
	}
	if addr := deref(overrides.RedisAddr); addr != "" {
		cfg.Cache.RedisAddr = addr
	}

	return nil
}

func toQuotes(in []yamlQuote) []carrier.RateQuote {
	quotes := make([]carrier.RateQuote, 0, len(in))
	for _, q := range in {
		quotes = append(quotes, carrier.RateQuote{ServiceCode: q.ServiceCode, ServiceName: q.ServiceName, Price: q.Price})
	}
	return quotes
}

// applyShipping overrides the non-empty shipping values.
func applyShipping(s *settings.Settings, unitSystem, multiplier, currency string) error {
	if unitSystem != "" {
		parsed, err := units.Parse(unitSystem)
		if err != nil {
			return err
		}
		s.Units = parsed
	}
	if multiplier != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(multiplier))
		if err != nil {
			return fmt.Errorf("%w: %w", units.ErrInvalidMultiplier, err)
		}
		s.UnitMultiplier = parsed
	}
	if currency != "" {
		s.Currency = currency
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_RPS must be >= 0", ErrInvalidConfig)
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_BURST must be >= 0", ErrInvalidConfig)
	}

	shipping, err := cfg.Shipping.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Shipping = shipping

	cfg.Carrier.Mode = strings.ToLower(cfg.Carrier.Mode)
	switch cfg.Carrier.Mode {
	case CarrierUSPS:
		if cfg.Carrier.UserID == "" {
			return fmt.Errorf("%w: USPS user id is required in usps carrier mode", ErrInvalidConfig)
		}
		if cfg.Carrier.Timeout <= 0 {
			return fmt.Errorf("%w: carrier timeout must be positive", ErrInvalidConfig)
		}
	case CarrierStatic:
		for _, q := range slices.Concat(cfg.Carrier.StaticQuotes, cfg.Carrier.StaticInternationalQuotes) {
			if q.Price < 0 {
				return fmt.Errorf("%w: static quote %q has a negative price", ErrInvalidConfig, q.ServiceCode)
			}
		}
	default:
		return fmt.Errorf("%w: unknown carrier mode %q", ErrInvalidConfig, cfg.Carrier.Mode)
	}
	if cfg.Carrier.RateLimitRPS < 0 || cfg.Carrier.RateLimitBurst < 0 {
		return fmt.Errorf("%w: carrier rate limit must be >= 0", ErrInvalidConfig)
	}

	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)
	switch cfg.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("%w: redis address is required for the redis cache backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, cfg.Cache.Backend)
	}

	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
