package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"TriggerDesk/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Metrics receives publish and handle outcomes. *metrics.Recorder fits.
type Metrics interface {
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordError(string)            {}

type fetched struct {
	reader *kafka.Reader
	msg    kafka.Message
}

// Consumer reads the registered topics in a consumer group and hands each
// message to its handler. Messages of one partition always land on the same
// worker, so per symbol order survives when producers key by symbol.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	queues   []chan fetched
	dlq      *kafka.Writer

	cancelFetch context.CancelFunc
	cancelWork  context.CancelFunc
	stop        chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "triggerdesk",
		StartOffset: "latest",
		Workers:     1,
		BufferSize:  256,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if cfg.Hook == nil {
		cfg.Hook = NoopHook{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Consumer{
		cfg:      cfg,
		log:      log.With("kafka-consumer"),
		handlers: make(map[string]MessageHandler),
		stop:     make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// SetHook replaces the hook. Call it before Start.
func (c *Consumer) SetHook(h Hook) {
	if h != nil {
		c.cfg.Hook = h
	}
}

// RegisterHandler adds a handler. The first handler for a topic wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn("handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start opens one reader per registered topic and the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	workCtx, cancelWork := context.WithCancel(context.Background())
	fetchCtx, cancelFetch := context.WithCancel(workCtx)
	c.cancelWork, c.cancelFetch = cancelWork, cancelFetch

	c.queues = make([]chan fetched, c.cfg.Workers)
	for i := range c.queues {
		c.queues[i] = make(chan fetched, c.cfg.BufferSize)
		c.wg.Add(1)
		go c.worker(workCtx, c.queues[i])
	}

	start := kafka.LastOffset
	if c.cfg.StartOffset == "earliest" {
		start = kafka.FirstOffset
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
		c.readers = append(c.readers, r)
		c.wg.Add(1)
		go c.fetch(fetchCtx, r)
	}
	c.log.Info("consumer started", logger.Int("topics", len(c.readers)), logger.Int("workers", c.cfg.Workers), logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop ends fetching, lets the workers finish their queues and closes the
// readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.cancelFetch != nil {
			c.cancelFetch()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}
		if c.cancelWork != nil {
			c.cancelWork()
		}
		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("reader close failed", logger.String("topic", r.Config().Topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return err
}

// queueFor pins a partition to a worker.
func (c *Consumer) queueFor(partition int) chan fetched {
	if partition < 0 {
		partition = -partition
	}
	return c.queues[partition%len(c.queues)]
}

func (c *Consumer) fetch(ctx context.Context, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch failed", logger.String("topic", r.Config().Topic), logger.Error(err))
			c.cfg.Metrics.RecordError("kafka_fetch")
			if !sleepOrStop(c.stop, c.cfg.BackoffMax) {
				return
			}
			continue
		}
		select {
		case c.queueFor(msg.Partition) <- fetched{reader: r, msg: msg}:
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context, queue <-chan fetched) {
	defer c.wg.Done()
	for {
		select {
		case f := <-queue:
			c.process(ctx, f)
		case <-c.stop:
			// drain what was already fetched
			for {
				select {
				case f := <-queue:
					c.process(ctx, f)
				default:
					return
				}
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, f fetched) {
	topic := f.msg.Topic
	h, ok := c.handlers[topic]
	if !ok {
		return
	}
	start := time.Now()
	err := c.handle(ctx, h, f.msg)
	c.cfg.Metrics.RecordLatency("kafka_handle", time.Since(start).Seconds())

	switch {
	case err == nil, errors.Is(err, ErrSkip):
	case c.dlq != nil:
		c.cfg.Metrics.RecordError("kafka_handle")
		c.log.Error("handler failed, parking message", logger.String("topic", topic), logger.Int("partition", f.msg.Partition), logger.Error(err))
		if derr := c.toDLQ(ctx, f.msg, err); derr != nil {
			c.cfg.Metrics.RecordError("kafka_dlq")
			c.log.Error("dlq write failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(derr))
			return
		}
	default:
		// without a DLQ the offset is left uncommitted so the group redelivers
		c.cfg.Metrics.RecordError("kafka_handle")
		c.log.Error("handler failed", logger.String("topic", topic), logger.Int("partition", f.msg.Partition), logger.Error(err))
		return
	}
	c.commit(ctx, f)
}

// handle runs the hook and the handler with bounded retries.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) error {
	var err error
	for attempt := 1; ; attempt++ {
		hctx, berr := c.cfg.Hook.Before(ctx, km)
		if berr != nil {
			return berr
		}
		start := time.Now()
		err = safeHandle(hctx, h, km.Value)
		c.cfg.Hook.After(hctx, km, err, time.Since(start))
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepOrStop(c.stop, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) toDLQ(ctx context.Context, km kafka.Message, cause error) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
}

func (c *Consumer) commit(ctx context.Context, f fetched) {
	for attempt := 1; attempt <= 3; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := f.reader.CommitMessages(cctx, f.msg)
		cancel()
		if err == nil {
			return
		}
		if attempt == 3 || ctx.Err() != nil {
			c.cfg.Metrics.RecordError("kafka_commit")
			c.log.Error("commit failed", logger.String("topic", f.msg.Topic), logger.Int64("offset", f.msg.Offset), logger.Error(err))
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// backoff doubles from min up to max and takes off up to half as jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 31 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}
