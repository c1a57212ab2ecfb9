package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/service/sections"
	"TriggerDesk/internal/services/replay"
	"TriggerDesk/pkg/cache"
	"TriggerDesk/pkg/logger"
)

// cadenceClaimTTL outlives the minute a claim covers.
const cadenceClaimTTL = 2 * time.Minute

// ReplayService assembles snapshots from the context sources and hands them
// to the replay writer, both on the cadence and for each recorded GO.
type ReplayService struct {
	writer    *replay.Writer
	reader    *replay.Reader
	sections  domrepo.ContextSource
	prices    PriceLookup
	goArchive domrepo.GoArchive
	publisher domrepo.EventPublisher
	claims    cache.Locker
	symbol    string
	log       *logger.Logger
	now       func() time.Time
}

type ReplayOption func(*ReplayService)

func WithGoArchive(a domrepo.GoArchive) ReplayOption {
	return func(s *ReplayService) { s.goArchive = a }
}

func WithReplayPublisher(p domrepo.EventPublisher) ReplayOption {
	return func(s *ReplayService) { s.publisher = p }
}

func WithReplayPrices(p PriceLookup) ReplayOption {
	return func(s *ReplayService) { s.prices = p }
}

// WithCadenceClaims makes instances sharing the locker take turns per
// minute, so cadence events are published once.
func WithCadenceClaims(l cache.Locker) ReplayOption {
	return func(s *ReplayService) { s.claims = l }
}

// WithCadenceSymbol pins the cadence to one symbol. Cadence snapshots are
// stored one per minute, so a second symbol would collide with the first.
func WithCadenceSymbol(symbol string) ReplayOption {
	return func(s *ReplayService) { s.symbol = strings.ToUpper(strings.TrimSpace(symbol)) }
}

func WithReplayClock(now func() time.Time) ReplayOption {
	return func(s *ReplayService) { s.now = now }
}

func NewReplayService(w *replay.Writer, r *replay.Reader, src domrepo.ContextSource, log *logger.Logger, opts ...ReplayOption) *ReplayService {
	if log == nil {
		log = logger.Nop()
	}
	s := &ReplayService{writer: w, reader: r, sections: src, log: log.With("replay"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// snapshot captures the context sections as raw JSON. A failing section is
// stored as an {"ok":false,"error"} block so the snapshot is still written.
func (s *ReplayService) snapshot(ctx context.Context, symbol string) models.ReplaySnapshot {
	snap := models.ReplaySnapshot{OK: true, Symbol: symbol}
	fetch := func(section string) json.RawMessage {
		if s.sections == nil {
			return replay.SectionError(section, models.ErrUpstreamUnavailable)
		}
		raw, err := s.sections.Fetch(ctx, section, symbol)
		if err != nil {
			s.log.Warn("section unavailable", logger.String("section", section), logger.String("symbol", symbol), logger.Error(err))
			return replay.SectionError(section, err)
		}
		return raw
	}
	snap.Structure.SmzHierarchy = fetch(sections.SmzHierarchy)
	snap.Fib = fetch(sections.Fib)
	snap.Decision = fetch(sections.Decision)
	if s.prices != nil {
		if p, err := s.prices.LastPrice(ctx, symbol); err != nil {
			snap.Market = &models.MarketBlock{OK: false, Error: err.Error()}
		} else {
			snap.Market = &models.MarketBlock{OK: true, Price: p}
		}
	}
	return snap
}

// Cadence writes the snapshot of the current minute for symbol. An empty
// symbol means the cadence symbol.
func (s *ReplayService) Cadence(ctx context.Context, symbol string) models.CadenceResult {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = s.symbol
	}
	if symbol == "" {
		return models.CadenceResult{OK: false, Error: models.ErrInvalidInput.Error()}
	}
	if s.symbol != "" && symbol != s.symbol {
		return models.CadenceResult{OK: false, Error: fmt.Sprintf("%v: cadence runs for %s only", models.ErrInvalidInput, s.symbol)}
	}
	now := s.now()
	if s.claims != nil {
		key := cache.Key("replay", "cadence", symbol, replay.DateOf(now), replay.HHMM(now))
		won, err := s.claims.TryLock(ctx, key, cadenceClaimTTL)
		if err != nil {
			s.log.Warn("cadence claim failed, writing anyway", logger.String("symbol", symbol), logger.Error(err))
		} else if !won {
			return models.CadenceResult{OK: true, Skipped: true, Reason: models.SkipMinuteClaimed}
		}
	}
	snap := s.snapshot(ctx, symbol)
	snap.TsUTC = now.UTC().Format(time.RFC3339Nano)
	res := s.writer.WriteCadence(snap)
	switch {
	case !res.OK:
		s.log.Error("cadence snapshot failed", logger.String("symbol", symbol), logger.String("error", res.Error))
	case res.Skipped:
		s.log.Debug("cadence snapshot exists", logger.String("file", res.SnapshotFile))
	default:
		s.log.Info("cadence snapshot written", logger.String("file", res.SnapshotFile), logger.Strings("events", res.Events))
		if len(res.Events) > 0 {
			s.publishEvents(ctx, res.SnapshotFile)
		}
	}
	return res
}

// publishEvents forwards the events derived for one snapshot.
func (s *ReplayService) publishEvents(ctx context.Context, rel string) {
	if s.publisher == nil {
		return
	}
	date, file := filepath.Dir(rel), filepath.Base(rel)
	log, err := s.reader.Events(date)
	if err != nil {
		s.log.Warn("events unreadable", logger.String("date", date), logger.Error(err))
		return
	}
	for _, ev := range log.Events {
		if ev.Refs.SnapshotFile != file {
			continue
		}
		if err := s.publisher.PublishEvent(ctx, ev); err != nil {
			s.log.Warn("publish event failed", logger.String("type", string(ev.Type)), logger.Error(err))
		}
	}
}

// RecordGo captures a GO snapshot. Duplicates and rate-limited GOs come back
// as skipped results.
func (s *ReplayService) RecordGo(ctx context.Context, p models.GoPayload) models.RecordGoResult {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	res := s.writer.RecordGo(p, s.snapshot(ctx, p.Symbol))
	if !res.OK {
		s.log.Error("GO snapshot failed", logger.String("key", res.GoKey), logger.String("error", res.Error))
		return res
	}
	if res.Skipped {
		s.log.Info("GO snapshot skipped", logger.String("key", res.GoKey), logger.String("reason", res.Reason))
		return res
	}
	s.log.Info("GO snapshot recorded", logger.String("key", res.GoKey), logger.String("file", res.SnapshotFile))
	if s.goArchive != nil {
		if err := s.goArchive.StoreGo(ctx, p, res.SnapshotFile); err != nil {
			s.log.Warn("GO archive failed", logger.String("key", res.GoKey), logger.Error(err))
		}
	}
	s.publishEvents(ctx, res.SnapshotFile)
	return res
}

// RunCadence writes a cadence snapshot of the cadence symbol every interval,
// aligned to interval boundaries, until ctx is done.
func (s *ReplayService) RunCadence(ctx context.Context, interval time.Duration) {
	if s.symbol == "" {
		s.log.Warn("replay cadence has no symbol, not running")
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		now := s.now()
		wait := now.Truncate(interval).Add(interval).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		s.Cadence(ctx, s.symbol)
	}
}

func (s *ReplayService) Dates() ([]string, error) { return s.reader.Dates() }

func (s *ReplayService) Times(date string) ([]string, error) { return s.reader.Times(date) }

func (s *ReplayService) Snapshot(date, hhmm string) ([]byte, error) {
	return s.reader.Snapshot(date, hhmm)
}

func (s *ReplayService) Events(date string) (models.EventLog, error) {
	return s.reader.Events(date)
}

// ValidateGo checks the fields the recorder needs before any I/O.
func ValidateGo(p models.GoPayload) error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", models.ErrInvalidInput)
	}
	if p.Direction != string(models.DirectionLong) && p.Direction != string(models.DirectionShort) {
		return fmt.Errorf("%w: direction must be LONG or SHORT", models.ErrInvalidInput)
	}
	if strings.TrimSpace(p.AtUTC) == "" {
		return fmt.Errorf("%w: atUtc is required", models.ErrInvalidInput)
	}
	return nil
}
