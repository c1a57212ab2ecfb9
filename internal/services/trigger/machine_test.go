package trigger

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"TriggerDesk/internal/domain/models"
)

const t0 = int64(1_700_000_000_000)

func negotiated() *models.Zone {
	return &models.Zone{ID: "n1", Lo: 680, Hi: 682, Kind: models.KindNegotiated, Side: models.SideDemand}
}

func armed() ReactionEvent {
	return ReactionEvent{Result: models.ReactionResult{OK: true, Stage: models.StageArmed, Armed: true}}
}

func hasEffect(fx []Effect, kind EffectKind) (Effect, bool) {
	for _, e := range fx {
		if e.Kind == kind {
			return e, true
		}
	}
	return Effect{}, false
}

// runPullbackReclaim drives the machine through arm, impulse, pullback and a
// 1s break starting at start; it returns the effects of the final 1s close.
func runPullbackReclaim(m *Machine, start int64) []Effect {
	m.Apply(start, ZoneEvent{Zone: negotiated()})
	m.Apply(start, armed())
	sec := start / 1000
	m.Apply(start+60_000, MinuteCloseEvent{Bar: models.Bar{Time: sec, Open: 681.7, High: 682.15, Low: 681.70, Close: 682.10, Volume: 100}})
	m.Apply(start+120_000, MinuteCloseEvent{Bar: models.Bar{Time: sec + 60, Open: 682.0, High: 682.05, Low: 681.85, Close: 681.95, Volume: 100}})
	return m.Apply(start+121_000, SecondCloseEvent{Bar: models.Bar{Time: sec + 121, Open: 682.0, High: 682.09, Low: 682.0, Close: 682.08}})
}

func TestPullbackReclaimEmitsGo(t *testing.T) {
	m := NewMachine(DefaultConfig())
	fx := runPullbackReclaim(m, t0)
	edge, ok := hasEffect(fx, EffectGoRisingEdge)
	if !ok {
		t.Fatalf("expected a GO rising edge, got %+v (state %+v)", fx, m.State())
	}
	g := edge.Go
	now := t0 + 121_000
	if !g.Signal || g.Direction != models.DirectionLong || g.TriggerType != models.TriggerPullbackReclaim {
		t.Fatalf("unexpected GO %+v", g)
	}
	if g.TriggerLine != 682.05 {
		t.Fatalf("expected trigger line 682.05, got %v", g.TriggerLine)
	}
	if g.CooldownUntilMs != now+120_000 {
		t.Fatalf("expected cooldownUntilMs %d, got %d", now+120_000, g.CooldownUntilMs)
	}
	for _, code := range []string{models.ReasonPBReclaim, models.ReasonE3Armed, models.ReasonE4OK, models.ReasonTriggerLineBreak} {
		found := false
		for _, c := range g.ReasonCodes {
			found = found || c == code
		}
		if !found {
			t.Fatalf("missing %s in %v", code, g.ReasonCodes)
		}
	}
	if g.Executable {
		t.Fatal("GO must be display-only while execution is disabled")
	}
	st := m.State()
	if st.Stage != models.TriggerCooldown || st.PBState != models.PBNone || st.TriggerLine != 0 {
		t.Fatalf("expected COOLDOWN with cleared pullback, got %+v", st)
	}
}

func TestCooldownSuppressesRepeatThenResets(t *testing.T) {
	m := NewMachine(DefaultConfig())
	runPullbackReclaim(m, t0)
	fired := t0 + 121_000

	// same pattern again inside the cooldown
	again := fired + 10_000
	sec := again / 1000
	m.Apply(again, armed())
	m.Apply(again+20_000, MinuteCloseEvent{Bar: models.Bar{Time: sec, Open: 681.7, High: 682.15, Low: 681.7, Close: 682.1}})
	m.Apply(again+40_000, MinuteCloseEvent{Bar: models.Bar{Time: sec + 60, Open: 682, High: 682.05, Low: 681.85, Close: 681.95}})
	fx := m.Apply(again+41_000, SecondCloseEvent{Bar: models.Bar{Time: sec + 61, Close: 682.08, Open: 682, High: 682.08, Low: 682}})
	if _, ok := hasEffect(fx, EffectGoRisingEdge); ok {
		t.Fatal("no GO may fire during cooldown")
	}
	if st := m.State(); st.Stage != models.TriggerCooldown {
		t.Fatalf("expected COOLDOWN, got %s", st.Stage)
	}

	fx = m.Apply(fired+120_000, ClockEvent{})
	st := m.State()
	if st.Stage != models.TriggerIdle {
		t.Fatalf("expected IDLE after cooldown, got %s", st.Stage)
	}
	if st.PBState != models.PBNone || st.Impulse1mHigh != 0 || st.TriggerAboveCount != 0 {
		t.Fatalf("pullback fields not cleared: %+v", st)
	}
	if _, ok := hasEffect(fx, EffectGoCleared); !ok || st.Go.Signal {
		t.Fatalf("GO should clear at expiry: %+v", fx)
	}
}

func TestGoHeldUntilLaterOfHoldAndCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GoHold = 300 * time.Second
	m := NewMachine(cfg)
	runPullbackReclaim(m, t0)
	fired := t0 + 121_000
	m.Apply(fired+150_000, ClockEvent{})
	st := m.State()
	if st.Stage != models.TriggerIdle {
		t.Fatalf("cooldown should have expired, got %s", st.Stage)
	}
	if !st.Go.Signal {
		t.Fatal("GO must stay visible until the hold expires")
	}
	m.Apply(fired+300_000, ClockEvent{})
	if m.State().Go.Signal {
		t.Fatal("GO should clear once the hold expires")
	}
}

func TestKillSwitchAndZoneLossForceIdle(t *testing.T) {
	m := NewMachine(DefaultConfig())
	m.Apply(t0, ZoneEvent{Zone: negotiated()})
	m.Apply(t0, armed())
	if m.State().Stage != models.TriggerArmed {
		t.Fatalf("expected ARMED, got %s", m.State().Stage)
	}
	m.Apply(t0+1000, RiskEvent{Risk: models.RiskState{KillSwitch: true}})
	if m.State().Stage != models.TriggerIdle {
		t.Fatal("kill switch must force IDLE")
	}
	m.Apply(t0+2000, armed())
	if m.State().Stage != models.TriggerIdle {
		t.Fatal("must not arm while the kill switch is on")
	}
	m.Apply(t0+3000, RiskEvent{})
	m.Apply(t0+3000, armed())
	m.Apply(t0+4000, ZoneEvent{})
	if st := m.State(); st.Stage != models.TriggerIdle || st.ArmedAtMs != 0 {
		t.Fatalf("zone loss must force IDLE, got %+v", st)
	}
}

func TestNotInZoneResetsOnlyWithoutSequence(t *testing.T) {
	m := NewMachine(DefaultConfig())
	m.Apply(t0, ZoneEvent{Zone: negotiated()})
	m.Apply(t0, armed())
	out := ReactionEvent{Result: models.ReactionResult{OK: true, Stage: models.StageIdle, ReasonCodes: []string{models.ReasonNotInZone}}}
	m.Apply(t0+60_000, MinuteCloseEvent{Bar: models.Bar{Time: t0 / 1000, Open: 681.7, High: 682.15, Low: 681.7, Close: 682.1}})
	m.Apply(t0+61_000, out)
	if st := m.State(); st.Stage != models.TriggerArmed || st.PBState != models.PBImpulseSeen {
		t.Fatalf("live sequence must survive NOT_IN_ZONE, got %+v", st)
	}

	m2 := NewMachine(DefaultConfig())
	m2.Apply(t0, ZoneEvent{Zone: negotiated()})
	m2.Apply(t0, armed())
	m2.Apply(t0+1000, out)
	if m2.State().Stage != models.TriggerIdle {
		t.Fatal("NOT_IN_ZONE without a sequence must reset to IDLE")
	}
}

func TestArmedWindowExpires(t *testing.T) {
	m := NewMachine(DefaultConfig())
	m.Apply(t0, ZoneEvent{Zone: negotiated()})
	m.Apply(t0, armed())
	m.Apply(t0+121_000, ClockEvent{})
	if m.State().Stage != models.TriggerIdle {
		t.Fatalf("expected IDLE after armed window, got %s", m.State().Stage)
	}
}

func TestPullbackTimeoutClears(t *testing.T) {
	m := NewMachine(DefaultConfig())
	m.Apply(t0, ZoneEvent{Zone: negotiated()})
	m.Apply(t0, armed())
	sec := t0 / 1000
	m.Apply(t0+60_000, MinuteCloseEvent{Bar: models.Bar{Time: sec, Open: 681.7, High: 682.15, Low: 681.7, Close: 682.1}})
	m.Apply(t0+300_000, MinuteCloseEvent{Bar: models.Bar{Time: sec + 240, Open: 682.3, High: 682.4, Low: 681.8, Close: 682.3}})
	if st := m.State(); st.PBState != models.PBNone {
		t.Fatalf("pullback after the window must clear the sequence, got %+v", st)
	}
}

func TestShortsGated(t *testing.T) {
	supply := &models.Zone{ID: "s1", Lo: 690, Hi: 692, Side: models.SideSupply}
	m := NewMachine(DefaultConfig())
	m.Apply(t0, ZoneEvent{Zone: supply})
	m.Apply(t0, armed())
	if m.State().Stage != models.TriggerIdle {
		t.Fatal("shorts must not arm unless allowed")
	}
	cfg := DefaultConfig()
	cfg.AllowShorts = true
	m = NewMachine(cfg)
	m.Apply(t0, ZoneEvent{Zone: supply})
	m.Apply(t0, armed())
	sec := t0 / 1000
	m.Apply(t0+60_000, MinuteCloseEvent{Bar: models.Bar{Time: sec, Open: 690.3, High: 690.3, Low: 689.85, Close: 689.9}})
	m.Apply(t0+120_000, MinuteCloseEvent{Bar: models.Bar{Time: sec + 60, Open: 689.95, High: 690.15, Low: 689.95, Close: 690.05}})
	fx := m.Apply(t0+121_000, SecondCloseEvent{Bar: models.Bar{Time: sec + 121, Close: 689.9}})
	edge, ok := hasEffect(fx, EffectGoRisingEdge)
	if !ok || edge.Go.Direction != models.DirectionShort || edge.Go.TriggerLine != 689.95 {
		t.Fatalf("expected SHORT GO at 689.95, got %+v (state %+v)", fx, m.State())
	}
}

func TestVolumeTrapBlocksExecution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionEnabled = true
	m := NewMachine(cfg)
	m.Apply(t0, VolumeEvent{Result: models.VolumeResult{OK: true, VolumeScore: 9, Flags: models.VolumeFlags{LiquidityTrap: true}}})
	fx := runPullbackReclaim(m, t0)
	edge, ok := hasEffect(fx, EffectGoRisingEdge)
	if !ok {
		t.Fatal("display GO still fires with a trap")
	}
	if edge.Go.Executable {
		t.Fatal("liquidity trap must block execution")
	}
	assertGoCodes(t, edge.Go.ReasonCodes, models.ReasonExecBlockedE4Trap)
}

func TestLowVolumeScoreKeepsDisplayGo(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.ExecutionEnabled = enabled
		m := NewMachine(cfg)
		m.Apply(t0, VolumeEvent{Result: models.VolumeResult{OK: true, VolumeScore: 3}})
		edge, ok := hasEffect(runPullbackReclaim(m, t0), EffectGoRisingEdge)
		if !ok {
			t.Fatalf("execution=%v: a low e4 score must not suppress the GO", enabled)
		}
		if edge.Go.Executable {
			t.Fatalf("execution=%v: a low e4 score must block execution", enabled)
		}
		assertGoCodes(t, edge.Go.ReasonCodes, models.ReasonExecBlockedE4Score)
	}
}

// assertGoCodes checks the display GO codes plus the extra execution code.
func assertGoCodes(t *testing.T, codes []string, extra string) {
	t.Helper()
	for _, want := range []string{models.ReasonPBReclaim, models.ReasonE3Armed, models.ReasonE4OK, models.ReasonTriggerLineBreak, extra} {
		if !slices.Contains(codes, want) {
			t.Fatalf("reason codes %v missing %s", codes, want)
		}
	}
}

// Every TRIGGERED transition must come from ARMED with a pullback seen, the
// persistence count reached and no cooldown in force.
func TestTriggeredOnlyFromQualifiedState(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := DefaultConfig()
	cfg.PersistBars = 2
	m := NewMachine(cfg)
	now := t0
	price := 681.0
	for i := 0; i < 5000; i++ {
		now += int64(rng.Intn(3000) + 200)
		var ev Event
		switch rng.Intn(10) {
		case 0:
			ev = ZoneEvent{Zone: negotiated()}
		case 1:
			ev = armed()
		case 2:
			ev = RiskEvent{Risk: models.RiskState{KillSwitch: rng.Intn(20) == 0}}
		case 3, 4:
			o := price
			price += (rng.Float64() - 0.45) * 0.6
			ev = MinuteCloseEvent{Bar: models.Bar{Time: now / 1000, Open: o, High: max(o, price) + rng.Float64()*0.3, Low: min(o, price) - rng.Float64()*0.3, Close: price}}
		default:
			price += (rng.Float64() - 0.5) * 0.1
			ev = SecondCloseEvent{Bar: models.Bar{Time: now / 1000, Open: price, High: price, Low: price, Close: price}}
		}
		before := m.State()
		for _, e := range m.Apply(now, ev) {
			if e.Kind != EffectStageChanged || e.To != models.TriggerTriggered {
				continue
			}
			if before.Stage != models.TriggerArmed || before.PBState != models.PBPullbackSeen {
				t.Fatalf("step %d: triggered from %+v", i, before)
			}
			if before.TriggerAboveCount+1 < cfg.PersistBars || now < before.CooldownUntilMs {
				t.Fatalf("step %d: triggered without persistence or inside cooldown: %+v", i, before)
			}
		}
	}
}
