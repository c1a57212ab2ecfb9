package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/services/alert"
	"TriggerDesk/internal/services/microbars"
	"TriggerDesk/internal/services/reaction"
	"TriggerDesk/internal/services/trigger"
	"TriggerDesk/internal/services/volume"
	"TriggerDesk/pkg/logger"
)

// ErrEngineBusy is returned by Process when the tick queue is full.
var ErrEngineBusy = errors.New("live engine: tick queue full")

const (
	tickQueue  = 4096
	eventQueue = 64
	jobQueue   = 256
	jobTimeout = 15 * time.Second
)

// LiveConfig holds the live engine wiring that is not part of the machine.
type LiveConfig struct {
	Symbol        string
	StrategyID    string
	E3Mode        reaction.Mode
	Timeframe     models.Timeframe
	E4Mode        string
	ZoneRefresh   time.Duration
	RiskRefresh   time.Duration
	E3Interval    time.Duration
	E4Refresh     time.Duration
	ClockInterval time.Duration
	// Rollup is the higher timeframe folded from closed minutes in Session.
	Rollup  models.Timeframe
	Session models.Session
	Machine trigger.Config
}

func (c *LiveConfig) setDefaults() {
	if c.StrategyID == "" {
		c.StrategyID = "intraday_5b"
	}
	if c.Timeframe == "" {
		c.Timeframe = models.TF1m
	}
	if c.E4Mode == "" {
		c.E4Mode = "swing"
	}
	if c.ZoneRefresh <= 0 {
		c.ZoneRefresh = 120 * time.Second
	}
	if c.RiskRefresh <= 0 {
		c.RiskRefresh = 5 * time.Second
	}
	if c.E3Interval <= 0 {
		c.E3Interval = 2 * time.Second
	}
	if c.E4Refresh <= 0 {
		c.E4Refresh = 60 * time.Second
	}
	if c.ClockInterval <= 0 {
		c.ClockInterval = 250 * time.Millisecond
	}
	if c.Rollup == "" {
		c.Rollup = models.TF5m
	}
	if c.Session == "" {
		c.Session = models.SessionRTH
	}
}

type ReactionEvaluator interface {
	Evaluate(ctx context.Context, q ReactionQuery) models.ReactionResult
}

type VolumeEvaluator interface {
	Evaluate(ctx context.Context, q VolumeQuery) models.VolumeResult
}

// GoAlerter announces GO rising edges.
type GoAlerter interface {
	Emit(ctx context.Context, in alert.Input) models.AlertResult
}

// GoRecorder captures a replay snapshot for a GO.
type GoRecorder interface {
	RecordGo(ctx context.Context, p models.GoPayload) models.RecordGoResult
}

// BarRecorder persists closed live bars.
type BarRecorder interface {
	Archive(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) error
}

// LiveEngine owns the trigger machine of one symbol. Ticks and refresher
// results are applied by a single loop in arrival order; side effects of GO
// edges run on one worker so alert and replay recording keep their order.
type LiveEngine struct {
	cfg       LiveConfig
	zones     ZoneResolver
	reactions ReactionEvaluator
	volumes   VolumeEvaluator
	risk      domrepo.RiskSource
	alerts    GoAlerter
	recorder  GoRecorder
	publisher domrepo.EventPublisher
	bars      BarRecorder
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
	connected func() bool

	ticks  chan models.Tick
	events chan trigger.Event
	jobs   chan func(context.Context)

	// loop-owned
	builder *microbars.Builder
	rollup  *microbars.Rollup
	machine *trigger.Machine

	mu       sync.RWMutex
	status   models.LiveStatus
	price    float64
	errs     map[string]string
	subs     map[string]chan struct{}
	running  bool
	lastTick time.Time
}

type LiveOption func(*LiveEngine)

func WithRiskSource(r domrepo.RiskSource) LiveOption { return func(e *LiveEngine) { e.risk = r } }

func WithAlerter(a GoAlerter) LiveOption { return func(e *LiveEngine) { e.alerts = a } }

func WithGoRecorder(r GoRecorder) LiveOption { return func(e *LiveEngine) { e.recorder = r } }

func WithPublisher(p domrepo.EventPublisher) LiveOption {
	return func(e *LiveEngine) { e.publisher = p }
}

func WithBarRecorder(b BarRecorder) LiveOption { return func(e *LiveEngine) { e.bars = b } }

func WithLiveMetrics(m domrepo.Metrics) LiveOption { return func(e *LiveEngine) { e.metrics = m } }

func WithLiveClock(now func() time.Time) LiveOption { return func(e *LiveEngine) { e.now = now } }

// WithConnectivity reports the tick source state in the status record.
func WithConnectivity(fn func() bool) LiveOption { return func(e *LiveEngine) { e.connected = fn } }

func NewLiveEngine(cfg LiveConfig, zr ZoneResolver, re ReactionEvaluator, ve VolumeEvaluator, log *logger.Logger, opts ...LiveOption) *LiveEngine {
	cfg.setDefaults()
	if log == nil {
		log = logger.Nop()
	}
	e := &LiveEngine{
		cfg:       cfg,
		zones:     zr,
		reactions: re,
		volumes:   ve,
		log:       log.With("live"),
		now:       time.Now,
		ticks:     make(chan models.Tick, tickQueue),
		events:    make(chan trigger.Event, eventQueue),
		jobs:      make(chan func(context.Context), jobQueue),
		builder:   microbars.NewBuilder(cfg.Symbol),
		rollup:    microbars.NewRollup(cfg.Rollup, cfg.Session),
		machine:   trigger.NewMachine(cfg.Machine),
		errs:      make(map[string]string),
		subs:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.status = models.LiveStatus{
		OK:         true,
		Symbol:     cfg.Symbol,
		StrategyID: cfg.StrategyID,
		RollupTF:   cfg.Rollup,
		State:      e.machine.State(),
	}
	return e
}

func (e *LiveEngine) Symbol() string { return e.cfg.Symbol }

// Process queues a tick for the loop. It does not block; a full queue is
// reported so the pipeline can park the tick.
func (e *LiveEngine) Process(ctx context.Context, t models.Tick) error {
	if t.Symbol != e.cfg.Symbol {
		return nil
	}
	select {
	case e.ticks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrEngineBusy
	}
}

// Run starts the refreshers and the side-effect worker and blocks in the
// event loop until ctx is done.
func (e *LiveEngine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("live engine %s already running", e.cfg.Symbol)
	}
	e.running = true
	e.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.work(ctx)
	}()
	refreshers := []struct {
		name  string
		every time.Duration
		fn    func(context.Context) (trigger.Event, error)
	}{
		{"zone", e.cfg.ZoneRefresh, e.refreshZone},
		{"risk", e.cfg.RiskRefresh, e.refreshRisk},
		{"e3", e.cfg.E3Interval, e.refreshReaction},
		{"e4", e.cfg.E4Refresh, e.refreshVolume},
	}
	for _, r := range refreshers {
		wg.Add(1)
		go func(name string, every time.Duration, fn func(context.Context) (trigger.Event, error)) {
			defer wg.Done()
			e.refresh(ctx, name, every, fn)
		}(r.name, r.every, r.fn)
	}

	if e.metrics != nil {
		e.metrics.RecordStage(e.cfg.Symbol, string(models.TriggerIdle))
	}
	e.log.Info("live engine started",
		logger.String("symbol", e.cfg.Symbol),
		logger.String("strategy", e.cfg.StrategyID),
		logger.String("tf", string(e.cfg.Timeframe)),
	)
	e.loop(ctx)
	wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.log.Info("live engine stopped", logger.String("symbol", e.cfg.Symbol))
	return nil
}

func (e *LiveEngine) loop(ctx context.Context) {
	clock := time.NewTicker(e.cfg.ClockInterval)
	defer clock.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.ticks:
			e.onTick(ctx, t)
		case ev := <-e.events:
			e.apply(ctx, ev)
		case <-clock.C:
			e.apply(ctx, trigger.ClockEvent{})
		}
	}
}

// refresh runs fn now and then every interval, forwarding results to the loop.
// A failed refresh keeps the last committed value.
func (e *LiveEngine) refresh(ctx context.Context, name string, every time.Duration, fn func(context.Context) (trigger.Event, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		start := e.now()
		ev, err := fn(ctx)
		if e.metrics != nil {
			e.metrics.RecordLatency("refresh_"+name, e.now().Sub(start).Seconds())
		}
		switch {
		case err != nil && ctx.Err() == nil:
			e.setError(name, err)
			if e.metrics != nil {
				e.metrics.RecordError("refresh_" + name)
			}
			e.log.Warn("refresh failed", logger.String("refresher", name), logger.Error(err))
		case ev != nil:
			e.setError(name, nil)
			select {
			case e.events <- ev:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *LiveEngine) refreshZone(ctx context.Context) (trigger.Event, error) {
	var price *float64
	if p := e.lastPrice(); p > 0 {
		price = &p
	}
	sel, err := e.zones.Active(ctx, e.cfg.Symbol, string(e.cfg.Timeframe), price)
	if err != nil {
		return nil, err
	}
	return trigger.ZoneEvent{Zone: sel.Active}, nil
}

func (e *LiveEngine) refreshRisk(ctx context.Context) (trigger.Event, error) {
	if e.risk == nil {
		return nil, nil
	}
	r, err := e.risk.FetchRisk(ctx)
	if err != nil {
		return nil, err
	}
	return trigger.RiskEvent{Risk: r}, nil
}

func (e *LiveEngine) refreshReaction(ctx context.Context) (trigger.Event, error) {
	zone := e.currentZone()
	if zone == nil {
		return nil, nil
	}
	res := e.reactions.Evaluate(ctx, ReactionQuery{
		Symbol:     e.cfg.Symbol,
		TF:         string(e.cfg.Timeframe),
		Mode:       e.cfg.E3Mode,
		StrategyID: e.cfg.StrategyID,
		Side:       zone.Side,
		Zone:       zone,
	})
	if !res.OK {
		return nil, fmt.Errorf("e3: %s", res.Error)
	}
	return trigger.ReactionEvent{Result: res}, nil
}

func (e *LiveEngine) refreshVolume(ctx context.Context) (trigger.Event, error) {
	zone := e.currentZone()
	if zone == nil {
		return nil, nil
	}
	res := e.volumes.Evaluate(ctx, VolumeQuery{
		Symbol: e.cfg.Symbol,
		TF:     string(e.cfg.Timeframe),
		Lo:     zone.Lo,
		Hi:     zone.Hi,
		Mode:   e.cfg.E4Mode,
	})
	if !res.OK {
		return nil, fmt.Errorf("e4: %s", res.Error)
	}
	return trigger.VolumeEvent{Result: res}, nil
}

// onTick folds a tick into the microbars and feeds closed bars to the machine.
func (e *LiveEngine) onTick(ctx context.Context, t models.Tick) {
	closed, ok := e.builder.Add(t)
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordError("tick_dropped")
		}
		return
	}
	e.mu.Lock()
	e.price = t.Price
	e.lastTick = e.now()
	e.mu.Unlock()

	for _, c := range closed {
		bar := c.Bar
		switch c.Timeframe {
		case models.TF1s:
			e.mu.Lock()
			e.status.Last1s = &bar
			e.mu.Unlock()
			e.apply(ctx, trigger.SecondCloseEvent{Bar: bar})
		case models.TF1m:
			e.mu.Lock()
			e.status.Last1m = &bar
			e.mu.Unlock()
			e.foldMinute(bar)
			e.apply(ctx, trigger.MinuteCloseEvent{Bar: bar})
			e.archive(ctx, bar)
		}
	}
	e.trackForming()
	if len(closed) == 0 {
		e.publish()
	}
}

// foldMinute rolls a closed minute into the higher-timeframe bar.
func (e *LiveEngine) foldMinute(bar models.Bar) {
	done, ok := e.rollup.Add(bar)
	if !ok {
		return
	}
	forming, _ := e.rollup.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if done != nil {
		e.status.LastRollup = done
	}
	e.status.Forming = &forming
}

// trackForming publishes the minute still being built.
func (e *LiveEngine) trackForming() {
	for _, c := range e.builder.Flush() {
		if c.Timeframe != models.TF1m {
			continue
		}
		bar := c.Bar
		e.mu.Lock()
		e.status.Forming1m = &bar
		e.mu.Unlock()
	}
}

// apply runs one machine transition and dispatches its effects.
func (e *LiveEngine) apply(ctx context.Context, ev trigger.Event) {
	switch x := ev.(type) {
	case trigger.ReactionEvent:
		if cur := e.machine.Zone(); cur != nil && x.Result.Zone != nil && x.Result.Zone.ID != cur.ID {
			e.setError("e3", fmt.Errorf("stale result for zone %s", x.Result.Zone.ID))
			return
		}
	case trigger.VolumeEvent:
		cur := e.machine.Zone()
		if cur == nil {
			return
		}
		if checked := volume.CheckEcho(x.Result, cur.Lo, cur.Hi); !checked.OK {
			e.setError("e4", models.ErrZoneMismatchStale)
			if e.metrics != nil {
				e.metrics.RecordError("e4_stale")
			}
			return
		}
	}

	prev := e.machine.State().Go
	fx := e.machine.Apply(e.now().UnixMilli(), ev)
	for _, f := range fx {
		switch f.Kind {
		case trigger.EffectStageChanged:
			if e.metrics != nil {
				e.metrics.RecordStage(e.cfg.Symbol, string(f.To))
			}
			e.log.Info("stage changed",
				logger.String("symbol", e.cfg.Symbol),
				logger.String("from", string(f.From)),
				logger.String("to", string(f.To)),
				logger.String("reason", f.Reason),
			)
		case trigger.EffectGoRisingEdge:
			e.onGo(ctx, prev, f.Go)
		case trigger.EffectGoCleared:
			e.enqueue(ctx, false, func(ctx context.Context) {
				if e.publisher != nil {
					if err := e.publisher.PublishGo(ctx, e.cfg.Symbol, models.EmptyGo()); err != nil {
						e.log.Warn("publish GO clear failed", logger.Error(err))
					}
				}
			})
		}
	}
	e.publish()
}

func (e *LiveEngine) onGo(ctx context.Context, prev, next models.GoSignal) {
	if e.metrics != nil {
		e.metrics.RecordGo(e.cfg.Symbol, string(next.Direction))
	}
	e.log.Info("GO",
		logger.String("symbol", e.cfg.Symbol),
		logger.String("direction", string(next.Direction)),
		logger.Float64("price", next.Price),
		logger.Float64("triggerLine", next.TriggerLine),
		logger.Strings("reasons", next.ReasonCodes),
	)
	payload := e.goPayload(next)
	e.enqueue(ctx, true, func(ctx context.Context) {
		if e.alerts != nil {
			res := e.alerts.Emit(ctx, alert.Input{Symbol: e.cfg.Symbol, StrategyID: e.cfg.StrategyID, Prev: prev, Next: next})
			if !res.OK {
				e.log.Warn("alert failed", logger.String("key", res.Key), logger.String("error", res.Error))
			}
		}
		if e.recorder != nil {
			res := e.recorder.RecordGo(ctx, payload)
			if !res.OK {
				e.log.Warn("GO snapshot failed", logger.String("key", res.GoKey), logger.String("error", res.Error))
			}
		}
		if e.publisher != nil {
			if err := e.publisher.PublishGo(ctx, e.cfg.Symbol, next); err != nil {
				e.log.Warn("publish GO failed", logger.Error(err))
			}
		}
	})
}

func (e *LiveEngine) goPayload(g models.GoSignal) models.GoPayload {
	p := models.GoPayload{
		Symbol:      e.cfg.Symbol,
		StrategyID:  e.cfg.StrategyID,
		Direction:   string(g.Direction),
		AtUTC:       g.AtUTC,
		Price:       g.Price,
		TriggerType: string(g.TriggerType),
		TriggerLine: g.TriggerLine,
		ReasonCodes: append([]string{}, g.ReasonCodes...),
	}
	if z := e.machine.Zone(); z != nil {
		p.ZoneID = z.ID
	}
	scores := &models.EngineScores{}
	if r := e.machine.Reaction(); r != nil {
		s := r.ReactionScore
		scores.E3Score = &s
		scores.E3Stage = string(r.Stage)
	}
	if v := e.machine.Volume(); v != nil {
		s, c := v.VolumeScore, v.VolumeConfirmed
		scores.E4Score = &s
		scores.E4Regime = string(v.Regime)
		scores.E4Confirmed = &c
	}
	p.EngineScores = scores
	return p
}

func (e *LiveEngine) archive(ctx context.Context, bar models.Bar) {
	if e.bars == nil {
		return
	}
	e.enqueue(ctx, false, func(ctx context.Context) {
		if err := e.bars.Archive(ctx, e.cfg.Symbol, models.TF1m, []models.Bar{bar}); err != nil {
			e.log.Warn("bar archive failed", logger.Int64("time", bar.Time), logger.Error(err))
		}
	})
}

// enqueue hands a job to the worker. Required jobs wait for room; others are
// dropped when the queue is full.
func (e *LiveEngine) enqueue(ctx context.Context, required bool, job func(context.Context)) {
	if required {
		select {
		case e.jobs <- job:
		case <-ctx.Done():
		}
		return
	}
	select {
	case e.jobs <- job:
	default:
		if e.metrics != nil {
			e.metrics.RecordError("live_jobs_full")
		}
	}
}

func (e *LiveEngine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.jobs:
			e.runJob(ctx, job)
		}
	}
}

func (e *LiveEngine) runJob(ctx context.Context, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("live job panicked", logger.Any("panic", r))
		}
	}()
	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	job(jctx)
}

// publish copies the machine view into the status record and wakes subscribers.
func (e *LiveEngine) publish() {
	st := e.machine.State()
	var zone *models.Zone
	if z := e.machine.Zone(); z != nil {
		c := *z
		zone = &c
	}
	var e3 *models.ReactionResult
	if r := e.machine.Reaction(); r != nil {
		c := *r
		e3 = &c
	}
	var e4 *models.VolumeResult
	if v := e.machine.Volume(); v != nil {
		c := *v
		e4 = &c
	}
	risk := e.machine.Risk()

	e.mu.Lock()
	e.status.State = st
	e.status.Zone = zone
	e.status.E3 = e3
	e.status.E4 = e4
	e.status.Risk = &risk
	e.status.LastTickMs = e.builder.LastTickMs()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
}

// Status returns a copy of the published status record.
func (e *LiveEngine) Status() models.LiveStatus {
	e.mu.RLock()
	s := e.status
	if len(e.errs) > 0 {
		s.Errors = make(map[string]string, len(e.errs))
		for k, v := range e.errs {
			s.Errors[k] = v
		}
	}
	e.mu.RUnlock()
	s.State.Go.ReasonCodes = append([]string{}, s.State.Go.ReasonCodes...)
	s.NowUTC = e.now().UTC().Format(time.RFC3339Nano)
	if e.connected != nil {
		s.Connected = e.connected()
	}
	return s
}

// LastTickAge is the wall time since the last accepted tick, zero if none.
func (e *LiveEngine) LastTickAge() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastTick.IsZero() {
		return 0
	}
	return e.now().Sub(e.lastTick)
}

// Subscribe registers a change notifier. The channel holds at most one
// pending wake-up so slow readers only ever see the latest state.
func (e *LiveEngine) Subscribe() (string, <-chan struct{}, func()) {
	id := uuid.NewString()
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.subs[id] = ch
	e.mu.Unlock()
	return id, ch, func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *LiveEngine) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

func (e *LiveEngine) setError(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.errs, name)
		return
	}
	e.errs[name] = err.Error()
}

func (e *LiveEngine) lastPrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.price
}

func (e *LiveEngine) currentZone() *models.Zone {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.status.Zone == nil {
		return nil
	}
	z := *e.status.Zone
	return &z
}
