package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/services/features"
	"TriggerDesk/pkg/cache"
	"TriggerDesk/pkg/logger"
)

const (
	DefaultBarLimit = 300
	maxBarLimit     = 5000
	maxLookback     = 730 * 24 * time.Hour
)

// BarStore serves OHLCV series from the provider with a short cache in front
// and the bar archive behind it.
type BarStore struct {
	provider domrepo.BarProvider
	archive  domrepo.BarArchive
	cache    cache.Service
	ttl      time.Duration
	session  models.Session
	now      func() time.Time
	metrics  domrepo.Metrics
	log      *logger.Logger
}

type BarStoreOption func(*BarStore)

func WithBarArchive(a domrepo.BarArchive) BarStoreOption {
	return func(s *BarStore) { s.archive = a }
}

func WithBarCache(c cache.Service, ttl time.Duration) BarStoreOption {
	return func(s *BarStore) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithSession(session models.Session) BarStoreOption {
	return func(s *BarStore) {
		if session != "" {
			s.session = session
		}
	}
}

func WithBarClock(now func() time.Time) BarStoreOption {
	return func(s *BarStore) { s.now = now }
}

func WithBarMetrics(m domrepo.Metrics) BarStoreOption {
	return func(s *BarStore) { s.metrics = m }
}

func NewBarStore(provider domrepo.BarProvider, log *logger.Logger, opts ...BarStoreOption) *BarStore {
	s := &BarStore{
		provider: provider,
		session:  models.SessionRTH,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	return s
}

// sourceTimeframe picks the provider resolution that is re-bucketed into tf.
// Intraday frames above 1m are built locally so buckets follow the session
// anchor rather than the provider's wall-clock grid.
func sourceTimeframe(tf models.Timeframe) models.Timeframe {
	switch tf {
	case models.TF5m, models.TF15m:
		return models.TF1m
	case models.TF30m, models.TF1h, models.TF4h:
		return models.TF5m
	default:
		return tf
	}
}

// lookback covers limit bars of tf, widened for session gaps and weekends.
func (s *BarStore) lookback(tf models.Timeframe, limit int) time.Duration {
	span := time.Duration(int64(limit)*tf.Seconds()) * time.Second
	factor := 1.6
	if tf.Intraday() && s.session == models.SessionRTH {
		factor = 6
	}
	d := time.Duration(float64(span) * factor)
	if d < 4*24*time.Hour {
		d = 4 * 24 * time.Hour
	}
	if d > maxLookback {
		d = maxLookback
	}
	return d
}

// GetBars returns up to limit closed bars ascending, deduplicated, without
// non-finite values or future timestamps.
func (s *BarStore) GetBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	if symbol == "" || tf.Seconds() == 0 {
		return nil, fmt.Errorf("%w: symbol and timeframe are required", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultBarLimit
	}
	if limit > maxBarLimit {
		limit = maxBarLimit
	}
	key := cache.Key("bars", symbol, string(tf), limit, string(s.session))
	if s.cache != nil {
		var cached []models.Bar
		if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("bar cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	start := s.now()
	bars, err := s.fetch(ctx, symbol, tf, limit)
	if s.metrics != nil {
		s.metrics.RecordLatency("bars_fetch", s.now().Sub(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("bars_fetch")
		}
		fallback, ferr := s.fromArchive(ctx, symbol, tf, limit)
		if ferr != nil || len(fallback) == 0 {
			return nil, err
		}
		s.log.Warn("bars served from archive", logger.String("symbol", symbol), logger.String("tf", string(tf)), logger.Error(err))
		return fallback, nil
	}
	if s.cache != nil && len(bars) > 0 && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, bars, s.ttl); err != nil {
			s.log.Warn("bar cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return bars, nil
}

func (s *BarStore) fetch(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	now := s.now()
	src := sourceTimeframe(tf)
	raw, err := s.provider.FetchBars(ctx, symbol, src, now.Add(-s.lookback(tf, limit)), now)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s bars: %w", symbol, src, err)
	}
	bars := features.SanitizeBars(raw, now)
	if src != tf {
		bars = features.Rebucket(bars, tf, s.session)
	}
	return features.Tail(dropOpenBucket(bars, tf, now), limit), nil
}

// dropOpenBucket removes the trailing bar while its bucket is still forming.
// Session-anchored 4h and daily buckets are left alone.
func dropOpenBucket(bars []models.Bar, tf models.Timeframe, now time.Time) []models.Bar {
	n := len(bars)
	if n == 0 || tf.Seconds() > 3600 {
		return bars
	}
	if bars[n-1].Time+tf.Seconds() > now.Unix() {
		return bars[:n-1]
	}
	return bars
}

// fromArchive serves 1s/1m bars from the archive when the provider is down.
func (s *BarStore) fromArchive(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	if s.archive == nil || (tf != models.TF1m && tf != models.TF1s) {
		return nil, models.ErrUpstreamUnavailable
	}
	bars, err := s.archive.LatestBars(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	return features.SanitizeBars(bars, s.now()), nil
}

// LastPrice is the close of the most recent 1m bar.
func (s *BarStore) LastPrice(ctx context.Context, symbol string) (float64, error) {
	bars, err := s.GetBars(ctx, symbol, models.TF1m, 5)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w: no bars for %s", models.ErrUpstreamUnavailable, symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// Archive stores closed bars when an archive is configured.
func (s *BarStore) Archive(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) error {
	if s.archive == nil || len(bars) == 0 {
		return nil
	}
	return s.archive.StoreBars(ctx, symbol, tf, bars)
}
