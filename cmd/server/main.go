package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/shipping-rates/internal/application"
	"github.com/eugenenazirov/shipping-rates/internal/config"
	"github.com/eugenenazirov/shipping-rates/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%v", err)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// parseFlags maps command-line flags onto config overrides. Flags left at
// their zero default do not override other sources.
func parseFlags(args []string) (*config.CLIOverrides, error) {
	app := kingpin.New("shipping-rates", "Shipping rate service - prices orders against carrier rate quotes")
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	port := app.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPS := app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurst := app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	unitSystem := app.Flag("units", "Unit system of line item weights").Enum("imperial", "metric")
	multiplier := app.Flag("unit-multiplier", "Multiplier applied to package weights").String()
	handlingFee := app.Flag("handling-fee", "Flat handling fee in minor currency units").Default("-1").Int64()
	currency := app.Flag("currency", "ISO currency code of quoted prices").String()
	carrierMode := app.Flag("carrier", "Carrier rate source").Enum("usps", "static")
	uspsUserID := app.Flag("usps-user-id", "USPS Web Tools user id").String()
	cacheBackend := app.Flag("cache", "Rate cache backend").Enum("memory", "redis", "none")
	redisAddr := app.Flag("redis-addr", "Redis address for the redis cache backend").String()

	if _, err := app.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile:     *configFile,
		Port:           port,
		Units:          unitSystem,
		UnitMultiplier: multiplier,
		Currency:       currency,
		CarrierMode:    carrierMode,
		USPSUserID:     uspsUserID,
		CacheBackend:   cacheBackend,
		RedisAddr:      redisAddr,
	}
	if *rateLimitRPS >= 0 {
		overrides.RateLimitRPS = rateLimitRPS
	}
	if *rateLimitBurst >= 0 {
		overrides.RateLimitBurst = rateLimitBurst
	}
	if *handlingFee >= 0 {
		overrides.HandlingFee = handlingFee
	}
	return overrides, nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
