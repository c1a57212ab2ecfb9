package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"TriggerDesk/internal/domain/models"
	mid "TriggerDesk/internal/middleware"
	"TriggerDesk/pkg/metrics"
)

type fakeStream struct {
	mu         sync.Mutex
	msgs       chan models.StreamMessage
	errs       chan error
	reconnects int
	closed     bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan models.StreamMessage, 16), errs: make(chan error, 1)}
}

func (f *fakeStream) Connect(context.Context) error   { return nil }
func (f *fakeStream) Subscribe(context.Context) error { return nil }

func (f *fakeStream) Read(context.Context) (<-chan models.StreamMessage, <-chan error) {
	return f.msgs, f.errs
}

func (f *fakeStream) Reconnect(context.Context) error {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) IsConnected() bool { return true }

func (f *fakeStream) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

type tickSink struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (s *tickSink) Process(_ context.Context, t models.Tick) error {
	s.mu.Lock()
	s.ticks = append(s.ticks, t)
	s.mu.Unlock()
	return nil
}

func (s *tickSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTickCollectorRoutesFrames(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	sink := &tickSink{}
	pipe := mid.NewTickPipeline(sink, m)
	stream := newFakeStream()
	bars := &callLog{}
	c := NewTickCollector(stream, pipe, bars, m, nil)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.msgs <- models.StreamMessage{Kind: models.StreamTrade, Symbol: "SPY", Tick: &models.Tick{Symbol: "SPY", TimeMs: 1_700_000_000_000, Price: 500, Size: 1}}
	stream.msgs <- models.StreamMessage{Kind: models.StreamMinute, Symbol: "SPY", Bar: &models.Bar{Time: 1_700_000_040, Open: 1, High: 1, Low: 1, Close: 1}}
	stream.msgs <- models.StreamMessage{Kind: models.StreamStatus, Status: "auth_success"}

	waitFor(t, "tick delivery", func() bool { return sink.count() == 1 })
	waitFor(t, "AM archive", func() bool {
		bars.mu.Lock()
		defer bars.mu.Unlock()
		return len(bars.bars) == 1
	})

	stream.errs <- errors.New("read: connection reset")
	waitFor(t, "reconnect", func() bool { return stream.reconnectCount() == 1 })

	stream.msgs <- models.StreamMessage{Kind: models.StreamTrade, Symbol: "SPY", Tick: &models.Tick{Symbol: "SPY", TimeMs: 1_700_000_001_000, Price: 500.1, Size: 1}}
	waitFor(t, "tick after reconnect", func() bool { return sink.count() == 2 })

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !stream.closed {
		t.Fatal("stream should be closed on shutdown")
	}
}

func TestKafkaTicksHandlerDecodesBothShapes(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	sink := &tickSink{}
	pipe := mid.NewTickPipeline(sink, m)
	h := NewKafkaTicksHandler("ticks", pipe, m)
	ctx := context.Background()

	if err := h.Handle(ctx, []byte(`{"sym":"spy","t":1700000000,"p":500.5,"s":10}`)); err != nil {
		t.Fatalf("stream shape: %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"SPY","t":1700000001000,"c":500.6,"v":3}`)); err != nil {
		t.Fatalf("archive shape: %v", err)
	}
	if err := h.Handle(ctx, []byte(`{not json`)); err == nil {
		t.Fatal("malformed payload should fail")
	}
	if sink.count() != 2 {
		t.Fatalf("expected 2 ticks, got %d", sink.count())
	}
	first, second := sink.ticks[0], sink.ticks[1]
	if first.Symbol != "SPY" || first.TimeMs != 1_700_000_000_000 || first.Price != 500.5 || first.Size != 10 {
		t.Fatalf("unexpected first tick %+v", first)
	}
	if second.TimeMs != 1_700_000_001_000 || second.Price != 500.6 || second.Size != 3 {
		t.Fatalf("unexpected second tick %+v", second)
	}
	if h.Topic() != "ticks" {
		t.Fatalf("topic = %s", h.Topic())
	}
}
