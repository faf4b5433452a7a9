package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eugenenazirov/shipping-rates/internal/api"
	"github.com/eugenenazirov/shipping-rates/internal/calculator"
	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/config"
	"github.com/eugenenazirov/shipping-rates/internal/ratecache"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

// carrierUnits is the unit system packages are built in before they are
// handed to the carrier client.
const carrierUnits = units.Imperial

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings *settings.Store
	carrier  carrier.RateClient
	registry *calculator.Registry
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
	redis    *redis.Client
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := settings.NewStore()
	if _, err := store.Swap(cfg.Shipping); err != nil {
		return nil, fmt.Errorf("apply shipping settings: %w", err)
	}

	app := &App{settings: store, logger: logger}

	client := newCarrier(cfg.Carrier, logger)
	cached, err := app.withCache(client, cfg.Cache)
	if err != nil {
		return nil, err
	}
	app.carrier = cached

	app.registry = calculator.NewCarrierRegistry(cached, store, logger, calculator.Variants())
	app.handler = api.NewHandler(app.registry, store, shipment.NewBuilder(store, carrierUnits))
	app.router = api.NewRouter(app.handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	app.server = NewServer(cfg, app.router)

	logger.Info("application configured",
		zap.String("carrier", cfg.Carrier.Mode),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("units", string(cfg.Shipping.Units)),
		zap.Int64("handling_fee", cfg.Shipping.HandlingFee),
	)
	return app, nil
}

func newCarrier(cfg config.CarrierConfig, logger *zap.Logger) carrier.RateClient {
	if cfg.Mode == config.CarrierStatic {
		return carrier.NewStatic("usps", carrier.USPSServiceCodes, cfg.StaticQuotes...).
			WithInternational(cfg.StaticInternationalQuotes...)
	}
	return carrier.NewUSPS(carrier.USPSConfig{
		Endpoint:  cfg.Endpoint,
		UserID:    cfg.UserID,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimitRPS,
		Burst:     cfg.RateLimitBurst,
	}, logger.Named("usps"))
}

func (a *App) withCache(client carrier.RateClient, cfg config.CacheConfig) (carrier.RateClient, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return client, nil
	case config.CacheRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store := ratecache.NewRedisStore(a.redis, "shipping-rates")
		return ratecache.New(client, store, cfg.TTL, a.logger.Named("ratecache")), nil
	case config.CacheMemory, "":
		store := ratecache.NewMemoryStore(cfg.Capacity)
		return ratecache.New(client, store, cfg.TTL, a.logger.Named("ratecache")), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases connections held by the cache backend.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
