// Package alert sends at most one outbound notification per GO rising edge.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/domain/repository"
	"TriggerDesk/pkg/logger"
)

// Outcomes reported in AlertResult.Why.
const (
	WhyDisabled      = "disabled"
	WhyNotRisingEdge = "not_rising_edge"
	WhyDuplicateKey  = "duplicate_key"
	WhyRateLimited   = "rate_limited"
	WhyCooldown      = "cooldown"
	WhySent          = "sent"
	WhyError         = "error"

	DefaultMinInterval = 60 * time.Second
)

// Input is one GO assignment as seen by the edge.
type Input struct {
	Symbol     string
	StrategyID string
	Prev       models.GoSignal
	Next       models.GoSignal
}

// Key identifies the GO being announced.
func (in Input) Key() string {
	return strings.Join([]string{in.Symbol, in.StrategyID, string(in.Next.Direction), in.Next.AtUTC}, "|")
}

type Emitter struct {
	enabled     bool
	minInterval time.Duration
	notifier    repository.Notifier
	ledger      Ledger
	now         func() time.Time
	log         *logger.Logger
	metrics     repository.Metrics
}

type Option func(*Emitter)

func WithEnabled(on bool) Option { return func(e *Emitter) { e.enabled = on } }

func WithMinInterval(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.minInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Emitter) { e.now = now } }

func WithLogger(l *logger.Logger) Option { return func(e *Emitter) { e.log = l } }

func WithMetrics(m repository.Metrics) Option { return func(e *Emitter) { e.metrics = m } }

func NewEmitter(n repository.Notifier, l Ledger, opts ...Option) *Emitter {
	e := &Emitter{
		enabled:     true,
		minInterval: DefaultMinInterval,
		notifier:    n,
		ledger:      l,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit evaluates the guards in order and sends when all pass. It never
// panics; failures come back as ok=false.
func (e *Emitter) Emit(ctx context.Context, in Input) (res models.AlertResult) {
	key := in.Key()
	defer func() {
		if r := recover(); r != nil {
			res = models.AlertResult{OK: false, Sent: false, Why: WhyError, Key: key, Error: fmt.Sprintf("panic: %v", r)}
		}
		if e.metrics != nil {
			e.metrics.RecordAlert(res.Why)
		}
	}()

	skip := func(why string) models.AlertResult {
		return models.AlertResult{OK: true, Sent: false, Why: why, Key: key}
	}
	if !e.enabled || e.notifier == nil || !e.notifier.IsEnabled() {
		return skip(WhyDisabled)
	}
	if in.Prev.Signal || !in.Next.Signal {
		return skip(WhyNotRisingEdge)
	}
	led, err := e.ledger.Load(ctx, in.Symbol)
	if err != nil {
		return models.AlertResult{OK: false, Why: WhyError, Key: key, Error: err.Error()}
	}
	now := e.now()
	nowMs := now.UnixMilli()
	if led.LastGoKey == key {
		return skip(WhyDuplicateKey)
	}
	if led.LastSentMs > 0 && nowMs-led.LastSentMs < e.minInterval.Milliseconds() {
		return skip(WhyRateLimited)
	}
	if nowMs < led.CooldownUntilMs {
		return skip(WhyCooldown)
	}

	n := &models.Notification{
		Title:     fmt.Sprintf("GO %s %s", in.Symbol, in.Next.Direction),
		Message:   message(in),
		Symbol:    in.Symbol,
		Price:     in.Next.Price,
		Key:       key,
		Timestamp: now.UTC(),
		Extra: map[string]any{
			"triggerType": in.Next.TriggerType,
			"triggerLine": in.Next.TriggerLine,
			"reasonCodes": in.Next.ReasonCodes,
			"executable":  in.Next.Executable,
		},
	}
	if err := e.notifier.Send(ctx, n); err != nil {
		e.log.Warn("alert send failed", logger.String("notifier", e.notifier.Name()), logger.String("key", key), logger.Error(err))
		return models.AlertResult{OK: false, Why: WhyError, Key: key, Error: err.Error()}
	}
	next := models.AlertLedger{
		LastSentAtUTC:   now.UTC().Format(time.RFC3339),
		LastSentMs:      nowMs,
		LastGoKey:       key,
		CooldownUntilMs: in.Next.CooldownUntilMs,
	}
	if err := e.ledger.Save(ctx, in.Symbol, next); err != nil {
		// the alert went out; report the ledger problem without re-sending
		e.log.Error("alert ledger save failed", logger.String("key", key), logger.Error(err))
		return models.AlertResult{OK: false, Sent: true, Why: WhySent, Key: key, Error: err.Error()}
	}
	e.log.Info("alert sent", logger.String("notifier", e.notifier.Name()), logger.String("key", key))
	return models.AlertResult{OK: true, Sent: true, Why: WhySent, Key: key}
}

func message(in Input) string {
	g := in.Next
	return fmt.Sprintf("%s %s at %.2f (%s, line %.2f) %s",
		in.Symbol, g.Direction, g.Price, g.TriggerType, g.TriggerLine, strings.Join(g.ReasonCodes, ","))
}
