package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TriggerDesk/pkg/logger"
)

// RedisQueue is a list-backed work queue with a delayed retry set and a dead-letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    Config
	client *redis.Client
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*RedisQueue)

// WithKeyPrefix sets the key namespace. Keys are <prefix>:messages, :retry and :dlq.
func WithKeyPrefix(prefix string) Option {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedisQueue(client *redis.Client, cfg Config, log *logger.Logger, opts ...Option) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &RedisQueue{
		log:    log.With("queue"),
		cfg:    cfg,
		client: client,
		prefix: "triggerdesk:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)
	r.log.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.String("prefix", r.prefix))
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message. The type must have a registered job.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) error {
	r.mu.RLock()
	_, ok := r.jobs[msgType]
	running := r.running
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !ok {
		return fmt.Errorf("no job registered for type %s", msgType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) key(kind string) string { return r.prefix + ":" + kind }

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.cfg.PollWait, r.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.log.Error("brpop error", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("unmarshal message", logger.Error(err))
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *RedisQueue) handle(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.push(ctx, "dlq", msg)
		return
	}
	err := job.Handle(ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("message dead-lettered",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.push(ctx, "dlq", msg)
		return
	}
	at := time.Now().Add(r.cfg.RetryDelay)
	data, _ := json.Marshal(msg)
	if err := r.client.ZAdd(context.Background(), r.key("retry"), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.log.Error("schedule retry", logger.Error(err))
		return
	}
	r.log.Warn("message retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))
}

func (r *RedisQueue) push(ctx context.Context, kind string, msg Message) {
	data, _ := json.Marshal(msg)
	if err := r.client.LPush(context.WithoutCancel(ctx), r.key(kind), data).Err(); err != nil {
		r.log.Error("lpush "+kind, logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.moveDue(ctx)
		}
	}
}

// moveDue moves retries whose time has come back onto the main list.
func (r *RedisQueue) moveDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.key("retry"), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("fetch retries", logger.Error(err))
		}
		return
	}
	for _, m := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.key("retry"), m)
		pipe.LPush(ctx, r.key("messages"), m)
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() == nil {
				r.log.Error("requeue retry", logger.Error(err))
			}
			return
		}
	}
}
