package openweather

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/grid-outage-forecast/internal/cache"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// CachedProvider wraps a WeatherProvider with an in-memory TTL LRU cache.
type CachedProvider struct {
	inner    domain.WeatherProvider
	current  *cache.LRU[domain.WeatherObservation]
	forecast *cache.LRU[[]domain.WeatherObservation]
	metrics  *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a weather provider.
func NewCachedProvider(inner domain.WeatherProvider, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:    inner,
		current:  cache.New[domain.WeatherObservation](maxEntries, ttl, clock),
		forecast: cache.New[[]domain.WeatherObservation](maxEntries, ttl, clock),
		metrics:  metrics,
	}
}

func (c *CachedProvider) Current(ctx context.Context, d domain.District) (domain.WeatherObservation, error) {
	if obs, ok := c.current.Get(d.Name); ok {
		c.metrics.CacheResult("weather", true)
		return obs, nil
	}
	c.metrics.CacheResult("weather", false)

	obs, err := c.inner.Current(ctx, d)
	if err != nil {
		return obs, err
	}
	c.current.Put(d.Name, obs)
	return obs, nil
}

func (c *CachedProvider) Forecast(ctx context.Context, d domain.District, hours int) ([]domain.WeatherObservation, error) {
	key := fmt.Sprintf("%s|%d", d.Name, hours)
	if items, ok := c.forecast.Get(key); ok {
		c.metrics.CacheResult("weather", true)
		return items, nil
	}
	c.metrics.CacheResult("weather", false)

	items, err := c.inner.Forecast(ctx, d, hours)
	if err != nil {
		return items, err
	}
	// Only cache non-empty results so transient empty responses can be retried.
	if len(items) > 0 {
		c.forecast.Put(key, items)
	}
	return items, nil
}
