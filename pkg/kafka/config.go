package kafka

import "time"

type ProducerOption func(*ProducerConfig)

type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
	Metrics      Metrics
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithRequiredAcks sets the acks level; -1 waits for all replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = n }
}

func WithBatchBytes(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = n }
}

// WithBatchTimeout is the linger before a partial batch is flushed.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = d }
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout, c.ReadTimeout = write, read }
}

// WithAsync makes writes fire and forget. Publish errors are then only
// visible through the writer's completion callback.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey keeps every message of one key (a symbol) on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

func WithProducerMetrics(m Metrics) ProducerOption {
	return func(c *ProducerConfig) { c.Metrics = m }
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset string
	Workers     int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Hook        Hook
	Metrics     Metrics
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = id }
}

// WithConsumerStartOffset picks where a new group starts: "earliest" or
// "latest".
func WithConsumerStartOffset(where string) ConsumerOption {
	return func(c *ConsumerConfig) { c.StartOffset = where }
}

// WithConsumerWorkers sets the worker count. Each partition is pinned to one
// worker so its messages stay in order.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithConsumerBufferSize is the per worker queue length.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax, c.BackoffMin, c.BackoffMax = max, backoffMin, backoffMax
	}
}

// WithConsumerDLQ parks messages that exhaust their retries on topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) { c.MinBytes, c.MaxBytes = minBytes, maxBytes }
}

func WithConsumerHook(h Hook) ConsumerOption {
	return func(c *ConsumerConfig) { c.Hook = h }
}

func WithConsumerMetrics(m Metrics) ConsumerOption {
	return func(c *ConsumerConfig) { c.Metrics = m }
}
