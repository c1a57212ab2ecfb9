package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorFoldsRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	log := Nop()
	child := log.With("polygon")
	log.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "triggerdesk.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		child.Error("stream read failed", String("symbol", "SPY"), Error(errors.New("reset")))
	}
	child.Error("stream read failed", String("symbol", "QQQ"))
	child.Warn("warnings are not collected")
	log.RemoveCollector()

	if len(pub.batches) != 1 || pub.topic != "triggerdesk.logs" {
		t.Fatalf("expected one batch on the topic, got %d to %q", len(pub.batches), pub.topic)
	}
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["symbol"].(string)] = e.Count
	}
	if counts["SPY"] != 3 || counts["QQQ"] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected aggregation %v", counts)
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.Add("error", "a", nil, "x.go:1")
	c.Add("error", "b", nil, "x.go:2")
	c.Close()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("threshold flush expected, got %+v", pub.batches)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stderr"}); err == nil {
		t.Fatal("unknown level should fail")
	}
	l, err := New(&Config{Level: "warn", Format: "json", Output: "stderr"})
	if err != nil || l == nil {
		t.Fatalf("new: %v", err)
	}
}
