package reaction

import (
	"math/rand"
	"testing"

	"TriggerDesk/internal/domain/models"
)

func bar(ts int64, o, h, l, c float64) models.Bar {
	return models.Bar{Time: ts, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

// aboveZone builds n quiet bars trading between 100.6 and 101.5.
func aboveZone(n int) []models.Bar {
	out := make([]models.Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, bar(int64(i*60), 101, 101.5, 100.6, 101))
	}
	return out
}

func demandZone() *models.Zone {
	return &models.Zone{ID: "z1", Lo: 99, Hi: 100, Side: models.SideDemand, Kind: models.KindInstitutional}
}

func TestNoTouchWhenZoneFarBelow(t *testing.T) {
	bars := make([]models.Bar, 30)
	for i := range bars {
		bars[i] = bar(int64(i*60), 100, 100, 100, 100)
	}
	res := Evaluate(Input{
		Symbol: "SPY", Timeframe: "1m", Mode: ModeSwing, Bars: bars, ATR: 1,
		Zone: &models.Zone{Lo: 90, Hi: 95}, ExplicitZone: true,
	})
	if !res.HasReason(models.ReasonNoTouch) {
		t.Fatalf("expected NO_TOUCH, got %v", res.ReasonCodes)
	}
	if res.ReactionScore != 0 || res.Stage != models.StageIdle {
		t.Fatalf("expected score 0 IDLE, got %v %s", res.ReactionScore, res.Stage)
	}
}

func TestFastRejectionHolds(t *testing.T) {
	bars := aboveZone(30)
	bars = append(bars,
		bar(1800, 101, 101, 99, 99.8),
		bar(1860, 99.8, 102.2, 99.7, 102),
		bar(1920, 102, 102.4, 101.8, 102.1),
	)
	res := Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Mode: ModeSwing, Bars: bars, ATR: 1, Zone: demandZone(), ExplicitZone: true})
	if res.ExitBars != 1 {
		t.Fatalf("expected exitBars 1, got %d", res.ExitBars)
	}
	if res.ReactionScore < 9 {
		t.Fatalf("expected score >= 9, got %v (%v)", res.ReactionScore, res.ReasonCodes)
	}
	if res.StructureState != models.StructureHold {
		t.Fatalf("expected HOLD, got %s", res.StructureState)
	}
	if res.DisplacementPoints < 3 {
		t.Fatalf("expected displacement points >= 3, got %v", res.DisplacementPoints)
	}
	if res.Stage != models.StageConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", res.Stage)
	}
}

func TestOutOfZoneResetAfterConfirmation(t *testing.T) {
	zone := *demandZone()
	bars := aboveZone(10)
	cases := []struct {
		name     string
		exitBars int
		price    float64
		want     models.Stage
	}{
		{"late exit is not a trigger", 4, 102.4, models.StageIdle},
		{"triggered exit confirms", 2, 102.4, models.StageConfirmed},
		{"no exit at all", 0, 102.4, models.StageIdle},
	}
	for _, tc := range cases {
		res := models.ReactionResult{ReactionScore: 7, ExitBars: tc.exitBars, Price: tc.price}
		stageFor(&res, Input{Mode: ModeSwing, PrevStage: models.StageArmed}, bars, zone, models.SideDemand, false, 1, PresetFor(ModeSwing))
		if res.Stage != tc.want {
			t.Fatalf("%s: stage %s, want %s (%v)", tc.name, res.Stage, tc.want, res.ReasonCodes)
		}
		if res.Stage == models.StageIdle && (res.Armed || res.HasReason(models.ReasonScoreConfirmed)) {
			t.Fatalf("%s: an IDLE reset must clear armed and confirmation: %+v", tc.name, res)
		}
	}
}

func TestStructureFailureCapsScore(t *testing.T) {
	bars := aboveZone(30)
	bars = append(bars,
		bar(1800, 101, 101, 99.2, 99.5),
		bar(1860, 99.5, 99.6, 98.4, 98.5),
		bar(1920, 98.5, 98.7, 97.7, 97.8),
		bar(1980, 97.8, 97.9, 96.9, 97),
	)
	res := Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Mode: ModeSwing, Bars: bars, ATR: 1, Zone: demandZone(), ExplicitZone: true})
	if res.StructureState != models.StructureFailure {
		t.Fatalf("expected FAILURE, got %s", res.StructureState)
	}
	if res.ReactionScore > 2 {
		t.Fatalf("expected score <= 2, got %v", res.ReactionScore)
	}
	if !res.HasReason(models.ReasonStructureFailure) {
		t.Fatalf("missing STRUCTURE_FAILURE in %v", res.ReasonCodes)
	}
}

func TestReclaimAfterBreak(t *testing.T) {
	bars := aboveZone(30)
	bars = append(bars,
		bar(1800, 101, 101, 99.2, 99.5),
		bar(1860, 99.5, 99.6, 98.4, 98.5),
		bar(1920, 98.5, 99.9, 98.4, 99.6),
	)
	res := Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Mode: ModeSwing, Bars: bars, ATR: 1, Zone: demandZone(), ExplicitZone: true})
	if res.StructureState != models.StructureReclaim {
		t.Fatalf("expected RECLAIM, got %s", res.StructureState)
	}
	if !res.HasReason(models.ReasonFakeoutReclaim) {
		t.Fatalf("missing FAKEOUT_RECLAIM in %v", res.ReasonCodes)
	}
}

func TestNotInZoneOnlyForResolvedZones(t *testing.T) {
	bars := aboveZone(30)
	in := Input{Symbol: "SPY", Timeframe: "1m", Bars: bars, ATR: 1, Zone: demandZone()}
	res := Evaluate(in)
	if !res.HasReason(models.ReasonNotInZone) {
		t.Fatalf("expected NOT_IN_ZONE, got %v", res.ReasonCodes)
	}
	in.ExplicitZone = true
	res = Evaluate(in)
	if res.HasReason(models.ReasonNotInZone) {
		t.Fatalf("explicit zone must not report NOT_IN_ZONE: %v", res.ReasonCodes)
	}
}

func TestFailureModes(t *testing.T) {
	res := Evaluate(Input{Timeframe: "1m", Bars: aboveZone(3), Zone: demandZone()})
	if res.OK || res.Error != models.ReasonMissingSymbolOrTF {
		t.Fatalf("expected MISSING_SYMBOL_OR_TF, got %+v", res)
	}
	res = Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Zone: demandZone()})
	if res.Error != models.ReasonBarsUnavailable {
		t.Fatalf("expected BARS_UNAVAILABLE, got %+v", res)
	}
	res = Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Bars: aboveZone(5), Zone: demandZone()})
	if res.Error != models.ReasonATRUnavailable {
		t.Fatalf("expected ATR_UNAVAILABLE, got %+v", res)
	}
}

func TestScalpWickProbeArmsNegotiatedZone(t *testing.T) {
	bars := make([]models.Bar, 0, 20)
	for i := 0; i < 20; i++ {
		bars = append(bars, bar(int64(i*60), 102, 103, 101, 102))
	}
	bars = append(bars, bar(1200, 99.8, 99.9, 98.9, 99.85))
	zone := &models.Zone{Lo: 99, Hi: 100, Kind: models.KindNegotiated, Side: models.SideDemand}
	res := Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Mode: ModeScalp, Bars: bars, ATR: 1, Zone: zone})
	if res.Stage != models.StageArmed || !res.Armed {
		t.Fatalf("expected ARMED, got %s (%v)", res.Stage, res.ReasonCodes)
	}
	if !res.HasReason(models.ReasonWickProbe) {
		t.Fatalf("expected WICK_PROBE, got %v", res.ReasonCodes)
	}
}

func TestScoreAlwaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	modes := []Mode{ModeScalp, ModeSwing, ModeLong}
	for trial := 0; trial < 300; trial++ {
		bars := make([]models.Bar, 60)
		px := 100.0
		for i := range bars {
			o := px
			c := o + (rng.Float64()-0.5)*2
			h := max(o, c) + rng.Float64()
			l := min(o, c) - rng.Float64()
			bars[i] = bar(int64(i*60), o, h, l, c)
			px = c
		}
		lo := 98 + rng.Float64()*3
		zone := &models.Zone{Lo: lo, Hi: lo + 0.5 + rng.Float64(), Kind: models.KindNegotiated}
		if rng.Intn(2) == 0 {
			zone.Side = models.SideSupply
		}
		res := Evaluate(Input{Symbol: "SPY", Timeframe: "1m", Mode: modes[trial%3], Bars: bars, Zone: zone, ExplicitZone: true})
		if res.ReactionScore < 0 || res.ReactionScore > 10 {
			t.Fatalf("trial %d: score out of range: %v", trial, res.ReactionScore)
		}
		if res.StructureState == models.StructureFailure && res.ReactionScore > 2 {
			t.Fatalf("trial %d: failure score %v above cap", trial, res.ReactionScore)
		}
		switch res.Stage {
		case models.StageIdle, models.StageArmed, models.StageTriggered, models.StageConfirmed:
		default:
			t.Fatalf("trial %d: unknown stage %q", trial, res.Stage)
		}
	}
}

func TestParseMode(t *testing.T) {
	cases := map[[2]string]Mode{
		{"scalp", ""}:           ModeScalp,
		{"", "intraday_scalp"}:  ModeScalp,
		{"", "long_term"}:       ModeLong,
		{"", "intraday_5b"}:     ModeSwing,
		{"LONG", "intraday_5b"}: ModeLong,
	}
	for in, want := range cases {
		if got := ParseMode(in[0], in[1]); got != want {
			t.Fatalf("ParseMode(%q, %q) = %s, want %s", in[0], in[1], got, want)
		}
	}
}
