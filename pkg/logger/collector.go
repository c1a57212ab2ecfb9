package logger

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships a batch of aggregated entries; the Kafka producer is the
// production implementation.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload any) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct error with how often it repeated.
type AggregatedLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// Collector folds repeated errors into counted entries and publishes them
// in batches, so a flapping upstream produces one record per window.
type Collector struct {
	cfg      CollectionConfig
	mu       sync.Mutex
	entries  map[uint64]*AggregatedLogEntry
	stop     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
	once     sync.Once
	fallback zerolog.Logger
}

func NewCollector(cfg *CollectionConfig) *Collector {
	c := &Collector{
		cfg:      *cfg,
		entries:  make(map[uint64]*AggregatedLogEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		fallback: zerolog.New(os.Stderr).With().Timestamp().Str("component", "log-collector").Logger(),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	go c.loop()
	return c
}

func (c *Collector) Add(level, msg string, fields map[string]any, caller string) {
	now := time.Now().UTC()
	key := fingerprint(level, msg, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Level: level, Message: msg, Fields: fields, Caller: caller,
		Count: 1, FirstSeen: now, LastSeen: now,
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.publish(c.takeLocked())
	}
}

// Close flushes the pending entries and waits for in-flight publishes.
func (c *Collector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		c.inflight.Wait()
	})
}

func (c *Collector) loop() {
	defer close(c.done)
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	c.publish(batch)
}

func (c *Collector) takeLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	return out
}

func (c *Collector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger itself would loop back here
			c.fallback.Warn().Err(err).Int("entries", len(batch)).Msg("aggregated logs dropped")
		}
	}()
}

// fingerprint keys an entry on everything but its timing. encoding/json
// sorts map keys, so equal field sets hash equally.
func fingerprint(level, msg string, fields map[string]any, caller string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(level + "\x00" + msg + "\x00" + caller + "\x00"))
	if raw, err := json.Marshal(fields); err == nil {
		_, _ = h.Write(raw)
	}
	return h.Sum64()
}
