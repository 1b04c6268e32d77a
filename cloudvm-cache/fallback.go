package cloudvm_cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// FallbackCache reads from a primary cache and falls back to a secondary one when the
// primary fails. Writes go to both, so the fallback is warm when the primary goes away.
type FallbackCache struct {
	primary  Cache
	fallback Cache
	logger   *slog.Logger
}

// NewFallbackCache combines two caches. A nil primary serves everything from fallback.
func NewFallbackCache(primary Cache, fallback Cache, logger *slog.Logger) *FallbackCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackCache{primary: primary, fallback: fallback, logger: logger}
}

// Connect tries Redis first and falls back to an in-process cache when it is unreachable.
func Connect(ctx context.Context, config *RedisConfig, logger *slog.Logger) *FallbackCache {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = DefaultRedisConfig()
	}
	memory := NewMemoryCache(config.Config)
	redisCache, err := NewRedisCache(ctx, config)
	if err != nil {
		logger.Warn("redis cache unavailable, using memory cache only", "error", err)
		return NewFallbackCache(nil, memory, logger)
	}
	return NewFallbackCache(redisCache, memory, logger)
}

func (fc *FallbackCache) Get(ctx context.Context, key string) ([]byte, error) {
	if fc.primary != nil {
		value, err := fc.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrCacheMiss) {
			return value, err
		}
		fc.logger.Warn("primary cache get failed, trying fallback", "error", err, "key", key)
	}
	return fc.fallback.Get(ctx, key)
}

func (fc *FallbackCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if fc.primary != nil {
		if err := fc.primary.Set(ctx, key, value, ttl); err != nil {
			fc.logger.Warn("primary cache set failed", "error", err, "key", key)
		}
	}
	return fc.fallback.Set(ctx, key, value, ttl)
}

// Delete removes keys from both caches. The fallback is cleared even when the primary fails,
// and the primary error is still returned: a stale entry may survive there.
func (fc *FallbackCache) Delete(ctx context.Context, keys ...string) error {
	var primaryErr error
	if fc.primary != nil {
		primaryErr = fc.primary.Delete(ctx, keys...)
	}
	return errors.Join(primaryErr, fc.fallback.Delete(ctx, keys...))
}

// Ping succeeds while either cache is reachable.
func (fc *FallbackCache) Ping(ctx context.Context) error {
	if fc.primary != nil {
		if err := fc.primary.Ping(ctx); err == nil {
			return nil
		}
	}
	return fc.fallback.Ping(ctx)
}

func (fc *FallbackCache) Close() error {
	var errs []error
	if fc.primary != nil {
		errs = append(errs, fc.primary.Close())
	}
	errs = append(errs, fc.fallback.Close())
	return errors.Join(errs...)
}
