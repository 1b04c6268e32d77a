package cloudvm_cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process cache with per-entry expiry. A background goroutine removes
// expired entries until Close is called.
type MemoryCache struct {
	config *Config
	mu     sync.RWMutex
	items  map[string]memoryCacheItem
	stopCh chan struct{}
	once   sync.Once
	now    func() time.Time
}

type memoryCacheItem struct {
	value      []byte
	expiration time.Time
}

func (item memoryCacheItem) expired(now time.Time) bool {
	return !item.expiration.IsZero() && now.After(item.expiration)
}

func NewMemoryCache(config *Config) *MemoryCache {
	if config == nil {
		config = DefaultConfig()
	}
	mc := &MemoryCache{
		config: config,
		items:  make(map[string]memoryCacheItem),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	go mc.cleanupExpired(time.Minute)
	return mc
}

func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	item, ok := mc.items[mc.config.Prefix+key]
	mc.mu.RUnlock()
	if !ok || item.expired(mc.now()) {
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryCacheItem{value: append([]byte(nil), value...)}
	if ttl = resolveTTL(mc.config, ttl); ttl > 0 {
		item.expiration = mc.now().Add(ttl)
	}
	mc.mu.Lock()
	mc.items[mc.config.Prefix+key] = item
	mc.mu.Unlock()
	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	mc.mu.Lock()
	for _, key := range keys {
		delete(mc.items, mc.config.Prefix+key)
	}
	mc.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included until cleanup runs.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}

func (mc *MemoryCache) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stopCh) })
	return nil
}

func (mc *MemoryCache) removeExpired() {
	now := mc.now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, item := range mc.items {
		if item.expired(now) {
			delete(mc.items, key)
		}
	}
}

func (mc *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCh:
			return
		}
	}
}
