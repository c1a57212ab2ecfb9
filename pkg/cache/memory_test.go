package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type ledger struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	if err := mc.Set(ctx, "a", ledger{Key: "k", Count: 2}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got ledger
	if err := mc.Get(ctx, "a", &got); err != nil || got.Key != "k" || got.Count != 2 {
		t.Fatalf("unexpected %+v (%v)", got, err)
	}
	if err := mc.Set(ctx, "s", "plain", time.Minute); err != nil {
		t.Fatal(err)
	}
	var s string
	if err := mc.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("unexpected %q (%v)", s, err)
	}
	if err := mc.Get(ctx, "missing", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiresAndEvicts(t *testing.T) {
	clk := &fakeNow{t: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clk.now))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, Key("bars", "SPY"), "x", time.Minute)
	_ = mc.Set(ctx, Key("bars", "QQQ"), "y", time.Hour)
	var v string
	_ = mc.Get(ctx, Key("bars", "SPY"), &v)
	_ = mc.Set(ctx, Key("alert", "SPY"), "z", time.Hour)
	if err := mc.Get(ctx, "bars:QQQ", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatal("least recently used entry should be evicted")
	}

	clk.advance(2 * time.Minute)
	if err := mc.Get(ctx, "bars:SPY", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatal("expired entry should miss")
	}
	if mc.Len() != 1 {
		t.Fatalf("len = %d", mc.Len())
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	clk := &fakeNow{t: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clk.now))
	defer mc.Close()
	ctx := context.Background()
	if ok, _ := mc.TryLock(ctx, "cadence:SPY", time.Minute); !ok {
		t.Fatal("first claim should win")
	}
	if ok, _ := mc.TryLock(ctx, "cadence:SPY", time.Minute); ok {
		t.Fatal("second claim should lose")
	}
	clk.advance(time.Minute)
	if ok, _ := mc.TryLock(ctx, "cadence:SPY", time.Minute); !ok {
		t.Fatal("claim should be free after ttl")
	}
}
