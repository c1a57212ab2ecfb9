package usecase

import (
	"context"
	"errors"
	"time"

	"TriggerDesk/internal/domain/models"
	drepo "TriggerDesk/internal/domain/repository"
	mid "TriggerDesk/internal/middleware"
	"TriggerDesk/pkg/logger"
)

var errStreamClosed = errors.New("market stream closed")

// TickCollector reads the market stream and feeds trades through the pipeline.
// Minute aggregates from the stream go to the bar archive.
type TickCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.TickPipeline
	bars    BarRecorder
	metrics drepo.Metrics
	log     *logger.Logger
	backoff time.Duration
}

// NewTickCollector creates a new TickCollector instance. bars may be nil.
func NewTickCollector(stream drepo.MarketStream, pipe *mid.TickPipeline, bars BarRecorder, metrics drepo.Metrics, log *logger.Logger) *TickCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &TickCollector{stream: stream, pipe: pipe, bars: bars, metrics: metrics, log: log.With("collector"), backoff: time.Second}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and consumes in the background. The consumer
// reconnects on stream errors until ctx is done.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	go c.run(ctx)
	return nil
}

func (c *TickCollector) run(ctx context.Context) {
	for ctx.Err() == nil {
		msgCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, msgCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("stream interrupted, reconnecting", logger.Error(err))
		for ctx.Err() == nil {
			if rerr := c.stream.Reconnect(ctx); rerr == nil {
				break
			} else {
				c.log.Error("reconnect failed", logger.Error(rerr))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}
	}
}

// consume returns when the stream reports an error or its channel closes.
func (c *TickCollector) consume(ctx context.Context, msgCh <-chan models.StreamMessage, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case m, ok := <-msgCh:
			if !ok {
				return errStreamClosed
			}
			c.handle(ctx, m)
		}
	}
}

func (c *TickCollector) handle(ctx context.Context, m models.StreamMessage) {
	switch m.Kind {
	case models.StreamTrade:
		if m.Tick == nil {
			return
		}
		if err := c.pipe.Process(ctx, *m.Tick); err != nil {
			c.log.Debug("tick not delivered", logger.String("symbol", m.Tick.Symbol), logger.Error(err))
		}
	case models.StreamMinute:
		if m.Bar == nil || c.bars == nil {
			return
		}
		if err := c.bars.Archive(ctx, m.Symbol, models.TF1m, []models.Bar{*m.Bar}); err != nil {
			c.metrics.RecordError("archive_am")
			c.log.Warn("archive AM bar failed", logger.String("symbol", m.Symbol), logger.Error(err))
		}
	case models.StreamStatus:
		c.log.Info("stream status", logger.String("status", m.Status), logger.String("message", m.Message))
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
