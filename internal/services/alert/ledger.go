package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/pkg/cache"
)

const ledgerPrefix = "alert:ledger"

// Ledger persists the last sent alert per symbol.
type Ledger interface {
	Load(ctx context.Context, symbol string) (models.AlertLedger, error)
	Save(ctx context.Context, symbol string, l models.AlertLedger) error
}

// CacheLedger keeps the ledger in a cache.Service (Redis in production).
type CacheLedger struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheLedger(c cache.Service, ttl time.Duration) *CacheLedger {
	return &CacheLedger{cache: c, ttl: ttl}
}

func (l *CacheLedger) Load(ctx context.Context, symbol string) (models.AlertLedger, error) {
	var out models.AlertLedger
	err := l.cache.Get(ctx, cache.Key(ledgerPrefix, symbol), &out)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.AlertLedger{}, nil
	}
	if err != nil {
		return models.AlertLedger{}, fmt.Errorf("load alert ledger: %w", err)
	}
	return out, nil
}

func (l *CacheLedger) Save(ctx context.Context, symbol string, led models.AlertLedger) error {
	if err := l.cache.Set(ctx, cache.Key(ledgerPrefix, symbol), led, l.ttl); err != nil {
		return fmt.Errorf("save alert ledger: %w", err)
	}
	return nil
}
