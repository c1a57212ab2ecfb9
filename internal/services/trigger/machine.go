// Package trigger implements the 5B pullback-reclaim state machine. The
// machine is pure: callers feed events with the current time and act on the
// returned effects.
package trigger

import (
	"time"

	"TriggerDesk/internal/domain/models"
)

// Config holds the machine tunables.
type Config struct {
	PersistBars        int
	BreakoutPts        float64
	Cooldown           time.Duration
	ArmedWindow        time.Duration
	GoHold             time.Duration
	ImpulseRangePts    float64
	PullbackWickPts    float64
	PullbackMaxMinutes int
	AllowShorts        bool
	ExecutionEnabled   bool
	MinVolumeScore     float64
}

func DefaultConfig() Config {
	return Config{
		PersistBars:        1,
		BreakoutPts:        0.02,
		Cooldown:           120 * time.Second,
		ArmedWindow:        120 * time.Second,
		GoHold:             120 * time.Second,
		ImpulseRangePts:    0.40,
		PullbackWickPts:    0.20,
		PullbackMaxMinutes: 3,
		MinVolumeScore:     7,
	}
}

// Machine is the per-symbol trigger state. Not safe for concurrent use.
type Machine struct {
	cfg   Config
	state models.TriggerState
	zone  *models.Zone
	risk  models.RiskState
	e3    *models.ReactionResult
	e4    *models.VolumeResult
}

func NewMachine(cfg Config) *Machine {
	if cfg.PersistBars <= 0 {
		cfg.PersistBars = 1
	}
	m := &Machine{cfg: cfg}
	m.state.Stage = models.TriggerIdle
	m.state.Go = models.EmptyGo()
	return m
}

// State returns a copy of the state record.
func (m *Machine) State() models.TriggerState {
	s := m.state
	s.Go.ReasonCodes = append([]string{}, m.state.Go.ReasonCodes...)
	return s
}

func (m *Machine) Zone() *models.Zone               { return m.zone }
func (m *Machine) Risk() models.RiskState           { return m.risk }
func (m *Machine) Reaction() *models.ReactionResult { return m.e3 }
func (m *Machine) Volume() *models.VolumeResult     { return m.e4 }

// Apply runs timers for nowMs and then the transition for ev.
func (m *Machine) Apply(nowMs int64, ev Event) []Effect {
	var fx []Effect
	fx = m.expire(nowMs, fx)
	switch e := ev.(type) {
	case ZoneEvent:
		fx = m.onZone(e.Zone, fx)
	case RiskEvent:
		m.risk = e.Risk
		if e.Risk.KillSwitch {
			fx = m.forceIdle("risk_kill_switch", fx)
		}
	case ReactionEvent:
		fx = m.onReaction(nowMs, e.Result, fx)
	case VolumeEvent:
		r := e.Result
		m.e4 = &r
	case MinuteCloseEvent:
		fx = m.onMinute(nowMs, e.Bar, fx)
	case SecondCloseEvent:
		fx = m.onSecond(nowMs, e.Bar, fx)
	case ClockEvent:
	}
	return fx
}

func (m *Machine) setStage(to models.TriggerStage, reason string, fx []Effect) []Effect {
	from := m.state.Stage
	if from == to {
		return fx
	}
	m.state.Stage = to
	return append(fx, Effect{Kind: EffectStageChanged, From: from, To: to, Reason: reason})
}

func (m *Machine) clearPullback() {
	m.state.PBState = models.PBNone
	m.state.Impulse1mTime = 0
	m.state.Impulse1mHigh = 0
	m.state.Impulse1mLow = 0
	m.state.Pullback1mTime = 0
	m.state.PullbackHigh = 0
	m.state.PullbackLow = 0
	m.state.TriggerLine = 0
	m.state.TriggerAboveCount = 0
}

// forceIdle drops any setup. The GO and the cooldown deadline are left alone:
// a visible GO only clears on its own expiry.
func (m *Machine) forceIdle(reason string, fx []Effect) []Effect {
	m.clearPullback()
	m.state.ArmedAtMs = 0
	m.state.Direction = ""
	return m.setStage(models.TriggerIdle, reason, fx)
}

// setGo assigns the GO record and reports rising and falling edges.
func (m *Machine) setGo(g models.GoSignal, fx []Effect) []Effect {
	prev := m.state.Go.Signal
	m.state.Go = g
	switch {
	case !prev && g.Signal:
		fx = append(fx, Effect{Kind: EffectGoRisingEdge, Go: g})
	case prev && !g.Signal:
		fx = append(fx, Effect{Kind: EffectGoCleared, Go: g})
	}
	return fx
}

func (m *Machine) expire(nowMs int64, fx []Effect) []Effect {
	s := &m.state
	if s.Go.Signal && nowMs >= max(s.Go.HoldUntilMs, s.Go.CooldownUntilMs) {
		fx = m.setGo(models.EmptyGo(), fx)
	}
	if s.Stage == models.TriggerCooldown && nowMs >= s.CooldownUntilMs {
		m.clearPullback()
		s.ArmedAtMs = 0
		s.Direction = ""
		fx = m.setStage(models.TriggerIdle, "cooldown_expired", fx)
	}
	if s.Stage == models.TriggerArmed && !m.armedRecent(nowMs) {
		fx = m.forceIdle("armed_window_expired", fx)
	}
	return fx
}

// armedRecent holds within the armed window, or while an impulse/pullback
// sequence that started inside it is still alive.
func (m *Machine) armedRecent(nowMs int64) bool {
	if m.state.PBState != models.PBNone {
		return true
	}
	return m.state.ArmedAtMs > 0 && nowMs-m.state.ArmedAtMs <= m.cfg.ArmedWindow.Milliseconds()
}

func sameZone(a, b *models.Zone) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Lo == b.Lo && a.Hi == b.Hi
}

func (m *Machine) onZone(z *models.Zone, fx []Effect) []Effect {
	prev := m.zone
	m.zone = z
	if z == nil {
		return m.forceIdle("no_active_zone", fx)
	}
	if m.state.Stage == models.TriggerArmed && !sameZone(prev, z) {
		return m.forceIdle("zone_changed", fx)
	}
	return fx
}

func (m *Machine) directionFor(z *models.Zone) (models.Direction, bool) {
	if z.EffectiveSide() == models.SideSupply {
		return models.DirectionShort, m.cfg.AllowShorts
	}
	return models.DirectionLong, true
}

func (m *Machine) onReaction(nowMs int64, r models.ReactionResult, fx []Effect) []Effect {
	m.e3 = &r
	if r.HasReason(models.ReasonNotInZone) {
		// A live impulse/pullback sequence has price outside the zone by
		// construction and survives the reset.
		if m.state.Stage == models.TriggerArmed && m.state.PBState == models.PBNone {
			return m.forceIdle(models.ReasonNotInZone, fx)
		}
		return fx
	}
	if r.Stage != models.StageArmed && r.Stage != models.StageConfirmed {
		return fx
	}
	if m.zone == nil || m.risk.KillSwitch {
		return fx
	}
	switch m.state.Stage {
	case models.TriggerIdle:
		if nowMs < m.state.CooldownUntilMs {
			return fx
		}
		dir, ok := m.directionFor(m.zone)
		if !ok {
			return fx
		}
		m.state.Direction = dir
		m.state.ArmedAtMs = nowMs
		return m.setStage(models.TriggerArmed, models.ReasonE3Armed, fx)
	case models.TriggerArmed:
		m.state.ArmedAtMs = nowMs
	}
	return fx
}

func (m *Machine) long() bool { return m.state.Direction != models.DirectionShort }

func (m *Machine) onMinute(nowMs int64, b models.Bar, fx []Effect) []Effect {
	s := &m.state
	if s.Stage != models.TriggerArmed || m.zone == nil || !m.armedRecent(nowMs) {
		return fx
	}
	maxAge := int64(m.cfg.PullbackMaxMinutes) * 60
	switch s.PBState {
	case models.PBNone:
		if m.isImpulse(b) {
			s.PBState = models.PBImpulseSeen
			s.Impulse1mTime = b.Time
			s.Impulse1mHigh = b.High
			s.Impulse1mLow = b.Low
		}
	case models.PBImpulseSeen:
		if b.Time <= s.Impulse1mTime {
			return fx
		}
		if b.Time-s.Impulse1mTime > maxAge {
			m.clearPullback()
			return fx
		}
		if m.isPullback(b) {
			s.PBState = models.PBPullbackSeen
			s.Pullback1mTime = b.Time
			s.PullbackHigh = b.High
			s.PullbackLow = b.Low
			s.TriggerLine = b.High
			if !m.long() {
				s.TriggerLine = b.Low
			}
			s.TriggerAboveCount = 0
			return fx
		}
		// the impulse extends while no pullback has formed
		if m.long() && b.High > s.Impulse1mHigh {
			s.Impulse1mHigh = b.High
		}
		if !m.long() && b.Low < s.Impulse1mLow {
			s.Impulse1mLow = b.Low
		}
	case models.PBPullbackSeen:
		if b.Time-s.Pullback1mTime > maxAge {
			m.clearPullback()
		}
	}
	return fx
}

func (m *Machine) isImpulse(b models.Bar) bool {
	if b.Range() < m.cfg.ImpulseRangePts {
		return false
	}
	if m.long() {
		return b.Close > m.zone.Hi+m.cfg.BreakoutPts
	}
	return b.Close < m.zone.Lo-m.cfg.BreakoutPts
}

func (m *Machine) isPullback(b models.Bar) bool {
	if m.long() {
		return b.Low <= m.state.Impulse1mHigh-m.cfg.PullbackWickPts
	}
	return b.High >= m.state.Impulse1mLow+m.cfg.PullbackWickPts
}

func (m *Machine) onSecond(nowMs int64, b models.Bar, fx []Effect) []Effect {
	s := &m.state
	if s.Stage != models.TriggerArmed || s.PBState != models.PBPullbackSeen {
		return fx
	}
	if !m.armedRecent(nowMs) || nowMs < s.CooldownUntilMs || m.risk.KillSwitch {
		return fx
	}
	above := b.Close > s.TriggerLine+m.cfg.BreakoutPts
	if !m.long() {
		above = b.Close < s.TriggerLine-m.cfg.BreakoutPts
	}
	if !above {
		s.TriggerAboveCount = 0
		return fx
	}
	s.TriggerAboveCount++
	if s.TriggerAboveCount < m.cfg.PersistBars {
		return fx
	}
	return m.fire(nowMs, b.Close, fx)
}

// fire performs ARMED → TRIGGERED → COOLDOWN and emits the GO.
func (m *Machine) fire(nowMs int64, price float64, fx []Effect) []Effect {
	s := &m.state
	line := s.TriggerLine
	fx = m.setStage(models.TriggerTriggered, models.ReasonTriggerLineBreak, fx)
	s.TriggeredAtMs = nowMs
	s.CooldownUntilMs = nowMs + m.cfg.Cooldown.Milliseconds()

	// E4 gates execution only; the display GO always carries E4_OK.
	codes := []string{models.ReasonPBReclaim, models.ReasonE3Armed, models.ReasonE4OK, models.ReasonTriggerLineBreak}
	blocked := false
	switch {
	case m.e4 == nil:
	case m.e4.Flags.LiquidityTrap:
		blocked = true
		codes = append(codes, models.ReasonExecBlockedE4Trap)
	case m.e4.VolumeScore < m.cfg.MinVolumeScore:
		blocked = true
		codes = append(codes, models.ReasonExecBlockedE4Score)
	}
	if !m.cfg.ExecutionEnabled {
		codes = append(codes, models.ReasonExecDisabled)
	}
	g := models.GoSignal{
		Signal:          true,
		Direction:       s.Direction,
		AtUTC:           time.UnixMilli(nowMs).UTC().Format(time.RFC3339),
		Price:           price,
		TriggerType:     models.TriggerPullbackReclaim,
		TriggerLine:     line,
		CooldownUntilMs: s.CooldownUntilMs,
		HoldUntilMs:     nowMs + m.cfg.GoHold.Milliseconds(),
		Executable:      m.cfg.ExecutionEnabled && !blocked,
		ReasonCodes:     codes,
	}
	fx = m.setGo(g, fx)
	m.clearPullback()
	return m.setStage(models.TriggerCooldown, "cooldown", fx)
}
