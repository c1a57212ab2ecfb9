package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
)

// ErrBuffered reports a tick that downstream refused and the pipeline parked
// for a later flush. The tick is not lost.
var ErrBuffered = errors.New("pipeline: tick buffered")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t models.Tick) error
}

// TickPipeline sits between a tick source (websocket or Kafka) and the live
// engine. It validates, filters by symbol, optionally transforms, and keeps
// ticks in arrival order. When downstream refuses a tick the pipeline parks it
// and everything after it in a bounded buffer until the flusher drains it.
type TickPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	symbols   map[string]bool
	bufSize   int
	transform func(models.Tick) models.Tick
	now       func() time.Time

	mu      sync.Mutex
	pending []models.Tick
	started bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
}

type PipelineOption func(*TickPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithSymbols restricts the pipeline to the given symbols. Empty accepts all.
func WithSymbols(symbols []string) PipelineOption {
	return func(p *TickPipeline) {
		for _, s := range symbols {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				p.symbols[s] = true
			}
		}
	}
}

// WithTransform sets a transformation hook applied after validation.
func WithTransform(fn func(models.Tick) models.Tick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

func NewTickPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:    proc,
		metrics: metrics,
		symbols: make(map[string]bool),
		bufSize: 1000,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches background flushing of parked ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-p.wakeCh:
			case <-timer.C:
			}
			if err := p.flush(ctx); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if backoff < 2*time.Second {
					backoff *= 2
				}
			} else {
				backoff = 50 * time.Millisecond
			}
			timer.Reset(backoff)
		}
	}()
}

// Stop stops the background flushing.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Pending is the number of parked ticks.
func (p *TickPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Process validates and forwards t. Rejected ticks are dropped with an error;
// a downstream failure parks the tick and is reported to the caller.
func (p *TickPipeline) Process(ctx context.Context, t models.Tick) error {
	start := p.now()
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if len(p.symbols) > 0 && !p.symbols[t.Symbol] {
		return nil
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	p.metrics.RecordTick(t.Symbol)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)

	p.mu.Lock()
	if len(p.pending) > 0 {
		// keep arrival order behind what is already parked
		err := p.park(t)
		p.mu.Unlock()
		p.wake()
		return err
	}
	p.mu.Unlock()

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.mu.Lock()
		perr := p.park(t)
		p.mu.Unlock()
		if perr != nil {
			return perr
		}
		return fmt.Errorf("%w: %v", ErrBuffered, err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// park appends t to the buffer. Caller holds mu.
func (p *TickPipeline) park(t models.Tick) error {
	if len(p.pending) >= p.bufSize {
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline buffer full: dropped %s tick at %d", t.Symbol, t.TimeMs)
	}
	p.pending = append(p.pending, t)
	p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.pending)))
	return nil
}

func (p *TickPipeline) wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// flush drains parked ticks in order and stops at the first failure.
func (p *TickPipeline) flush(ctx context.Context) error {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return nil
		}
		t := p.pending[0]
		p.mu.Unlock()

		if err := p.proc.Process(ctx, t); err != nil {
			return err
		}
		p.mu.Lock()
		p.pending = p.pending[1:]
		p.mu.Unlock()
	}
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: symbol empty", models.ErrInvalidInput)
	}
	if t.TimeMs <= 0 {
		return fmt.Errorf("%w: timestamp invalid", models.ErrInvalidInput)
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: price invalid", models.ErrInvalidInput)
	}
	if math.IsNaN(t.Size) || t.Size < 0 {
		return fmt.Errorf("%w: negative size", models.ErrInvalidInput)
	}
	return nil
}
