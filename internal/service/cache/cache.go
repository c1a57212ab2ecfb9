package cache

import (
	"context"
	"errors"
	"time"

	"TriggerDesk/pkg/cache"
)

// BytesCache stores raw upstream response bodies with a TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Bodies keeps response bodies in a shared cache.Service under "resp".
type Bodies struct {
	svc cache.Service
}

func NewBodies(svc cache.Service) *Bodies {
	return &Bodies{svc: svc}
}

func (b *Bodies) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	if err := b.svc.Get(ctx, cache.Key("resp", key), &body); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return body, true, nil
}

func (b *Bodies) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.svc.Set(ctx, cache.Key("resp", key), value, ttl)
}
