package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/pkg/metrics"
)

type recordingProc struct {
	mu   sync.Mutex
	fail bool
	got  []int64
}

func (r *recordingProc) Process(_ context.Context, t models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("down")
	}
	r.got = append(r.got, t.TimeMs)
	return nil
}

func (r *recordingProc) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *recordingProc) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64{}, r.got...)
}

func newPipe(proc Proc, opts ...PipelineOption) *TickPipeline {
	return NewTickPipeline(proc, metrics.NewWithRegistry(prometheus.NewRegistry()), opts...)
}

func TestProcessRejectsInvalidTicks(t *testing.T) {
	proc := &recordingProc{}
	p := newPipe(proc)
	bad := []models.Tick{
		{Symbol: "", TimeMs: 1, Price: 1},
		{Symbol: "SPY", TimeMs: 0, Price: 1},
		{Symbol: "SPY", TimeMs: 1, Price: -1},
		{Symbol: "SPY", TimeMs: 1, Price: 1, Size: -2},
	}
	for i, tk := range bad {
		if err := p.Process(context.Background(), tk); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("case %d: want ErrInvalidInput, got %v", i, err)
		}
	}
	if len(proc.seen()) != 0 {
		t.Fatalf("invalid ticks reached downstream")
	}
}

func TestProcessFiltersSymbols(t *testing.T) {
	proc := &recordingProc{}
	p := newPipe(proc, WithSymbols([]string{"spy"}))
	_ = p.Process(context.Background(), models.Tick{Symbol: "qqq", TimeMs: 1, Price: 1})
	_ = p.Process(context.Background(), models.Tick{Symbol: "spy", TimeMs: 2, Price: 1})
	got := proc.seen()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected downstream ticks %v", got)
	}
}

func TestParkedTicksKeepArrivalOrder(t *testing.T) {
	proc := &recordingProc{fail: true}
	p := newPipe(proc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Process(ctx, models.Tick{Symbol: "SPY", TimeMs: 1, Price: 1}); !errors.Is(err, ErrBuffered) {
		t.Fatalf("expected ErrBuffered, got %v", err)
	}
	proc.setFail(false)
	// parked tick is ahead, so this one must queue behind it
	if err := p.Process(ctx, models.Tick{Symbol: "SPY", TimeMs: 2, Price: 1}); err != nil {
		t.Fatalf("park: %v", err)
	}
	if p.Pending() != 2 {
		t.Fatalf("want 2 pending, got %d", p.Pending())
	}
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for p.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := proc.seen()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("order lost: %v", got)
	}
}

func TestBufferFullDrops(t *testing.T) {
	proc := &recordingProc{fail: true}
	p := newPipe(proc, WithBufferSize(1))
	_ = p.Process(context.Background(), models.Tick{Symbol: "SPY", TimeMs: 1, Price: 1})
	if err := p.Process(context.Background(), models.Tick{Symbol: "SPY", TimeMs: 2, Price: 1}); err == nil {
		t.Fatalf("expected buffer full error")
	}
	if p.Pending() != 1 {
		t.Fatalf("want 1 pending, got %d", p.Pending())
	}
}
