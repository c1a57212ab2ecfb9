package queue

import (
	"encoding/json"
	"testing"
)

func TestDecode(t *testing.T) {
	type note struct {
		Key   string  `json:"key"`
		Price float64 `json:"price"`
	}
	n, err := Decode[note](json.RawMessage(`{"key":"SPY|LONG","price":682.08}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Key != "SPY|LONG" || n.Price != 682.08 {
		t.Fatalf("unexpected %+v", n)
	}
	if _, err := Decode[note](nil); err == nil {
		t.Fatal("empty payload should fail")
	}
	if _, err := Decode[note](json.RawMessage(`[1,2`)); err == nil {
		t.Fatal("bad json should fail")
	}
}

func TestRedisQueueKeys(t *testing.T) {
	q := NewRedisQueue(nil, Config{}, nil, WithKeyPrefix("td:alerts"))
	if q.key("retry") != "td:alerts:retry" || q.cfg.Workers != 1 {
		t.Fatalf("unexpected queue setup: %s %+v", q.key("retry"), q.cfg)
	}
}
