package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a small in-process layer in front of Redis.
// Writes go to Redis first; the local copy never outlives localTTL.
type LayeredCache struct {
	local     *MemoryCache
	remote    *RedisCache
	localTTL  time.Duration
	localSize int
}

func NewLayeredCache(remote *RedisCache, opts ...LayeredOption) *LayeredCache {
	l := &LayeredCache{remote: remote, localTTL: 30 * time.Second, localSize: 1000}
	for _, opt := range opts {
		opt(l)
	}
	l.local = NewMemoryCache(WithMemoryMaxSize(l.localSize))
	return l
}

func (l *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	if raw, ok := l.local.lookup(key); ok {
		return decode(raw, dest)
	}
	raw, err := l.remote.getRaw(ctx, key)
	if err != nil {
		return err
	}
	l.local.store(key, raw, l.localTTL)
	return decode(raw, dest)
}

func (l *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := l.remote.Set(ctx, key, raw, ttl); err != nil {
		return err
	}
	local := l.localTTL
	if ttl > 0 && ttl < local {
		local = ttl
	}
	l.local.store(key, raw, local)
	return nil
}

func (l *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = l.local.Delete(ctx, keys...)
	return l.remote.Delete(ctx, keys...)
}

func (l *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.remote.TryLock(ctx, key, ttl)
}

// Close stops the local layer only; the Redis client belongs to its provider.
func (l *LayeredCache) Close() error {
	return l.local.Close()
}
