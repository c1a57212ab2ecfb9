package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// defaultTTL applies when Set is called without an expiry.
const defaultTTL = 24 * time.Hour

type memEntry struct {
	key     string
	raw     []byte
	expires time.Time
}

// MemoryCache is an in-process Service with LRU eviction and a background
// sweep of expired entries.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	maxSize    int
	sweepEvery time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    1000,
		sweepEvery: time.Minute,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.janitor()
	return m
}

func (m *MemoryCache) Get(_ context.Context, key string, dest any) error {
	raw, ok := m.lookup(key)
	if !ok {
		return ErrCacheMiss
	}
	return decode(raw, dest)
}

func (m *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	m.store(key, raw, ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if el, ok := m.items[k]; ok {
			m.remove(el)
		}
	}
	return nil
}

// TryLock claims key until ttl passes. Claims are local to this process.
func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok && m.now().Before(el.Value.(*memEntry).expires) {
		return false, nil
	}
	m.put(key, []byte("1"), ttl)
	return true, nil
}

func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryCache) lookup(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memEntry)
	if !m.now().Before(e.expires) {
		m.remove(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	return e.raw, true
}

func (m *MemoryCache) store(key string, raw []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, raw, ttl)
}

func (m *MemoryCache) put(key string, raw []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	expires := m.now().Add(ttl)
	if el, ok := m.items[key]; ok {
		e := el.Value.(*memEntry)
		e.raw, e.expires = raw, expires
		m.order.MoveToFront(el)
		return
	}
	for m.order.Len() >= m.maxSize {
		m.remove(m.order.Back())
	}
	m.items[key] = m.order.PushFront(&memEntry{key: key, raw: raw, expires: expires})
}

func (m *MemoryCache) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memEntry).key)
}

func (m *MemoryCache) janitor() {
	t := time.NewTicker(m.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *MemoryCache) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memEntry).expires) {
			m.remove(el)
		}
		el = prev
	}
}
