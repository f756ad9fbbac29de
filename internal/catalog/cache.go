package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const (
	treatmentsKey    = "catalog:treatments"
	professionalsKey = "catalog:professionals"
	defaultCacheTTL  = 5 * time.Minute
)

// CachedProvider is a Redis read-through cache in front of another Provider.
// Redis failures fall through to the inner provider; they never read as an
// empty catalog.
type CachedProvider struct {
	inner  Lister
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedProvider(inner Lister, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedProvider {
	if inner == nil {
		panic("catalog: inner provider required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedProvider) Treatments(ctx context.Context) ([]booking.Treatment, error) {
	return readThrough(ctx, c, treatmentsKey, c.inner.Treatments)
}

func (c *CachedProvider) Professionals(ctx context.Context) ([]booking.Professional, error) {
	return readThrough(ctx, c, professionalsKey, c.inner.Professionals)
}

func (c *CachedProvider) Treatment(ctx context.Context, id string) (booking.Treatment, error) {
	return FindTreatment(ctx, c, id)
}

func (c *CachedProvider) Professional(ctx context.Context, id string) (booking.Professional, error) {
	return FindProfessional(ctx, c, id)
}

// Invalidate drops both cached lists.
func (c *CachedProvider) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, treatmentsKey, professionalsKey).Err()
}

func readThrough[T any](ctx context.Context, c *CachedProvider, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var out []T
			if jsonErr := json.Unmarshal(data, &out); jsonErr == nil && out != nil {
				return out, nil
			}
			c.logger.Warn("catalog: discarding unreadable cache entry", "key", key)
		case errors.Is(err, redis.Nil):
		default:
			c.logger.Warn("catalog: cache read failed", "key", key, "error", err)
		}
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.redis != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog: cache write failed", "key", key, "error", err)
			}
		}
	}
	return out, nil
}
