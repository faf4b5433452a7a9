// Package ratecache decorates a carrier rate client with a transparent
// response cache. Identical lookups made concurrently share one carrier
// call, successful responses are reused until they expire and errors are
// never cached, so a cached lookup yields exactly what a fresh one would.
package ratecache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/metrics"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
)

// Client caches the responses of an underlying carrier.RateClient.
type Client struct {
	next   carrier.RateClient
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// New wraps next. A non-positive ttl defaults to five minutes.
func New(next carrier.RateClient, store Store, ttl time.Duration, logger *zap.Logger) *Client {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{next: next, store: store, ttl: ttl, logger: logger}
}

// Name returns the underlying carrier's name.
func (c *Client) Name() string {
	return c.next.Name()
}

// ResolveServiceCode delegates to the underlying carrier.
func (c *Client) ResolveServiceCode(code string) string {
	return carrier.ResolveServiceCode(c.next, code)
}

// FindRates serves the lookup from the cache when possible.
func (c *Client) FindRates(ctx context.Context, pkg shipment.Package) (*carrier.RateResponse, error) {
	key := c.next.Name() + ":" + pkg.Fingerprint()

	cached, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheOperation("get", "error")
		c.logger.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		metrics.RecordCacheOperation("get", "hit")
		return cached, nil
	default:
		metrics.RecordCacheOperation("get", "miss")
	}

	ch := c.group.DoChan(key, func() (any, error) {
		resp, err := c.next.FindRates(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			if err := c.store.Set(ctx, key, resp, c.ttl); err != nil {
				metrics.RecordCacheOperation("set", "error")
				c.logger.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
			} else {
				metrics.RecordCacheOperation("set", "ok")
			}
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", carrier.ErrCarrierUnavailable, ctx.Err())
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", carrier.ErrCarrierUnavailable, err)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		resp, _ := res.Val.(*carrier.RateResponse)
		return resp.Clone(), nil
	}
}
