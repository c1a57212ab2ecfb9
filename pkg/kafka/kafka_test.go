package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffStaysInRange(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoff(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
	if d := backoff(min, max, 1); d < min/2 || d > min {
		t.Fatalf("first backoff = %v", d)
	}
}

func TestEncodeValue(t *testing.T) {
	raw, err := encodeValue(map[string]any{"symbol": "SPY"})
	if err != nil || string(raw) != `{"symbol":"SPY"}` {
		t.Fatalf("json: %s %v", raw, err)
	}
	if raw, _ := encodeValue("plain"); string(raw) != "plain" {
		t.Fatalf("string: %s", raw)
	}
	if _, err := compressionOf("brotli"); err == nil {
		t.Fatal("unknown codec should fail")
	}
}

func TestMaxAgeSkipsOldMessages(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	h := MaxAge(30*time.Second, func() time.Time { return now })
	ctx := context.Background()
	if _, err := h.Before(ctx, kafka.Message{Time: now.Add(-time.Minute)}); !errors.Is(err, ErrSkip) {
		t.Fatalf("old message should be skipped, got %v", err)
	}
	if _, err := h.Before(ctx, kafka.Message{Time: now.Add(-time.Second)}); err != nil {
		t.Fatalf("fresh message: %v", err)
	}
	if _, err := MaxAge(0, nil).Before(ctx, kafka.Message{Time: now.Add(-time.Hour)}); err != nil {
		t.Fatal("zero age disables the check")
	}
}

func TestChainOrderAndPanics(t *testing.T) {
	var order []string
	rec := func(name string) Hook {
		return HookFuncs{
			BeforeFunc: func(ctx context.Context, _ kafka.Message) (context.Context, error) {
				order = append(order, "before:"+name)
				return ctx, nil
			},
			AfterFunc: func(context.Context, kafka.Message, error, time.Duration) {
				order = append(order, "after:"+name)
			},
		}
	}
	panicky := HookFuncs{AfterFunc: func(context.Context, kafka.Message, error, time.Duration) { panic("boom") }}
	h := Chain(rec("a"), nil, panicky, TraceHeader(), rec("b"))

	ctx, err := h.Before(context.Background(), kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}})
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if TraceID(ctx) != "t-1" {
		t.Fatalf("trace id = %q", TraceID(ctx))
	}
	h.After(ctx, kafka.Message{}, nil, time.Millisecond)
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v", order)
		}
	}

	bad := Chain(HookFuncs{BeforeFunc: func(context.Context, kafka.Message) (context.Context, error) { panic("x") }})
	if _, err := bad.Before(context.Background(), kafka.Message{}); err == nil {
		t.Fatal("a panicking hook should surface as an error")
	}
}

func TestConsumerPinsPartitions(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(3))
	if err != nil {
		t.Fatal(err)
	}
	c.queues = []chan fetched{make(chan fetched), make(chan fetched), make(chan fetched)}
	if c.queueFor(4) != c.queues[1] || c.queueFor(4) != c.queueFor(4) {
		t.Fatal("partition should map to a fixed worker")
	}
	if err := c.Start(); err == nil {
		t.Fatal("start without handlers should fail")
	}
	if _, err := NewConsumer(nil); err == nil {
		t.Fatal("brokers are required")
	}
}
