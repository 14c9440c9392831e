package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/geo"
)

const cacheKey = "fencewatch:catalog:snapshot"

// Cache is the seam between CachedProvider and Redis so the decorator is
// testable without a live server. A miss is derrors.ErrNotFound.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to the Cache seam.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, derrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

// CachedProvider decorates a Provider with a shared snapshot cache. Cache
// failures degrade to the inner provider; a dead cache never fails a read.
// Staleness up to the TTL is within the engine's eventual-consistency
// tolerance for catalog mutations.
type CachedProvider struct {
	inner Provider
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

var _ Provider = (*CachedProvider)(nil)

func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration, log *slog.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl, log: log}
}

func (p *CachedProvider) ListActive(ctx context.Context) ([]domain.Geofence, error) {
	raw, err := p.cache.Get(ctx, cacheKey)
	if err == nil {
		var fences []domain.Geofence
		if jsonErr := json.Unmarshal(raw, &fences); jsonErr == nil {
			return fences, nil
		}
		p.log.Warn("catalog cache entry corrupt, falling through", "key", cacheKey)
	} else if !errors.Is(err, derrors.ErrNotFound) {
		p.log.Warn("catalog cache read failed, falling through", "error", err)
	}

	fences, err := p.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if body, jsonErr := json.Marshal(fences); jsonErr == nil {
		if setErr := p.cache.Set(ctx, cacheKey, body, p.ttl); setErr != nil {
			p.log.Warn("catalog cache write failed", "error", setErr)
		}
	}
	return fences, nil
}

func (p *CachedProvider) ListNear(ctx context.Context, pt geo.Point, maxRadiusM float64) ([]domain.Geofence, error) {
	all, err := p.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return filterNear(all, pt, maxRadiusM), nil
}
