package cache

import "testing"

func TestWithRedisAddr(t *testing.T) {
	cfg := &RedisConfig{Addr: "localhost:6379"}
	WithRedisAddr("redis.internal:6380")(cfg)
	if cfg.Addr != "redis.internal:6380" {
		t.Fatalf("unexpected %+v", cfg)
	}
	WithRedisAddr("no-port")(cfg)
	if cfg.Addr != "redis.internal:6380" {
		t.Fatalf("malformed address must be ignored, got %+v", cfg)
	}
}

func TestKeySkipsEmptyParts(t *testing.T) {
	if got := Key("bars", "SPY", "1m", 300, ""); got != "bars:SPY:1m:300" {
		t.Fatalf("key = %s", got)
	}
}
