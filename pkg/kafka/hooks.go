package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrSkip returned from a Hook's Before drops the message: it is committed
// without being handled or sent to the DLQ.
var ErrSkip = errors.New("kafka: message skipped")

// Hook wraps the handling of each message.
type Hook interface {
	Before(ctx context.Context, km kafka.Message) (context.Context, error)
	After(ctx context.Context, km kafka.Message, err error, took time.Duration)
}

type NoopHook struct{}

func (NoopHook) Before(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}
func (NoopHook) After(context.Context, kafka.Message, error, time.Duration) {}

// HookFuncs adapts plain functions; nil fields do nothing.
type HookFuncs struct {
	BeforeFunc func(context.Context, kafka.Message) (context.Context, error)
	AfterFunc  func(context.Context, kafka.Message, error, time.Duration)
}

func (h HookFuncs) Before(ctx context.Context, km kafka.Message) (context.Context, error) {
	if h.BeforeFunc == nil {
		return ctx, nil
	}
	return h.BeforeFunc(ctx, km)
}

func (h HookFuncs) After(ctx context.Context, km kafka.Message, err error, took time.Duration) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, km, err, took)
	}
}

// Chain runs Before in order and After in reverse. A panicking hook is
// turned into an error instead of killing the worker.
func Chain(hooks ...Hook) Hook {
	out := make(chain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type chain []Hook

func (c chain) Before(ctx context.Context, km kafka.Message) (_ context.Context, err error) {
	for _, h := range c {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kafka hook panic: %v", r)
				}
			}()
			ctx, err = h.Before(ctx, km)
		}()
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func (c chain) After(ctx context.Context, km kafka.Message, err error, took time.Duration) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].After(ctx, km, err, took)
		}()
	}
}

// MaxAge skips messages whose broker timestamp is older than age. Live tick
// consumers use it to jump over a backlog after downtime.
func MaxAge(age time.Duration, now func() time.Time) Hook {
	if now == nil {
		now = time.Now
	}
	return HookFuncs{BeforeFunc: func(ctx context.Context, km kafka.Message) (context.Context, error) {
		if age > 0 && !km.Time.IsZero() && now().Sub(km.Time) > age {
			return ctx, ErrSkip
		}
		return ctx, nil
	}}
}

type traceKey struct{}

// TraceHeader copies the trace_id header into the context.
func TraceHeader() Hook {
	return HookFuncs{BeforeFunc: func(ctx context.Context, km kafka.Message) (context.Context, error) {
		for _, h := range km.Headers {
			if h.Key == "trace_id" && len(h.Value) > 0 {
				return context.WithValue(ctx, traceKey{}, string(h.Value)), nil
			}
		}
		return ctx, nil
	}}
}

func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
