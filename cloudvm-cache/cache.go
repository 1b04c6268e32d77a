// Package cloudvm_cache caches serialized API reads. A Redis-backed cache is used when a
// server is reachable; an in-process cache serves as the fallback and as the default for
// local runs.
package cloudvm_cache

import (
	"context"
	"errors"
	"time"
)

// Cache defines the operations every implementation provides.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl uses the configured default; a negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error

	Close() error
}

// Config holds settings shared by all implementations.
type Config struct {
	// Default TTL for entries stored with ttl 0
	DefaultTTL time.Duration

	// Prefix prepended to every key
	Prefix string
}

func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: time.Minute,
		Prefix:     "cloudvm:",
	}
}

// CacheError wraps a failed cache operation.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return "cache " + e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return "cache " + e.Op + ": " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

var ErrCacheMiss = errors.New("cache miss")

func resolveTTL(config *Config, ttl time.Duration) time.Duration {
	if ttl == 0 {
		return config.DefaultTTL
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}
