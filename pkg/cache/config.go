package cache

import (
	"net"
	"time"
)

type RedisOption func(*RedisConfig)

// RedisConfig is the connection setup for NewRedisCache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	PingTimeout  time.Duration
	Prefix       string
}

// WithRedisAddr sets the "host:port" address. Malformed input is ignored.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			c.Addr = addr
		}
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize, c.MinIdleConns, c.PoolTimeout = size, minIdle, timeout
	}
}

// WithRedisPrefix namespaces every key written through the cache.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the entry count; the least recently used entry is
// evicted first.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(m *MemoryCache) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// WithMemoryJanitor sets how often expired entries are swept.
func WithMemoryJanitor(every time.Duration) MemoryOption {
	return func(m *MemoryCache) {
		if every > 0 {
			m.sweepEvery = every
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryCache) {
		if now != nil {
			m.now = now
		}
	}
}

type LayeredOption func(*LayeredCache)

// WithLocalTTL caps how long a value lives in the in-process layer so other
// instances' writes become visible.
func WithLocalTTL(ttl time.Duration) LayeredOption {
	return func(l *LayeredCache) {
		if ttl > 0 {
			l.localTTL = ttl
		}
	}
}

func WithLocalSize(n int) LayeredOption {
	return func(l *LayeredCache) { l.localSize = n }
}
