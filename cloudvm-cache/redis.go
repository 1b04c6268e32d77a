package cloudvm_cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	*Config

	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Config:       DefaultConfig(),
		Addr:         "localhost:6379",
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCache stores entries in Redis.
type RedisCache struct {
	client *redis.Client
	config *Config
	logger *slog.Logger
}

// NewRedisCache connects and pings the server; an unreachable server is an error.
func NewRedisCache(ctx context.Context, config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	rc := &RedisCache{client: client, config: config.Config, logger: logger}
	if err := rc.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("redis cache initialized", "addr", config.Addr, "db", config.DB)
	return rc, nil
}

func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	key = rc.config.Prefix + key
	value, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, &CacheError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	key = rc.config.Prefix + key
	if err := rc.client.Set(ctx, key, value, resolveTTL(rc.config, ttl)).Err(); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (rc *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = rc.config.Prefix + key
	}
	if err := rc.client.Del(ctx, prefixed...).Err(); err != nil {
		return &CacheError{Op: "delete", Err: err}
	}
	return nil
}

func (rc *RedisCache) Ping(ctx context.Context) error {
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return &CacheError{Op: "ping", Err: err}
	}
	return nil
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
