package microbars

import (
	"testing"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/features"
)

func tick(ms int64, p, s float64) models.Tick {
	return models.Tick{Symbol: "SPY", TimeMs: ms, Price: p, Size: s}
}

func TestBuilderEmitsOnBucketChange(t *testing.T) {
	b := NewBuilder("SPY")
	base := int64(1_700_000_040_000) // minute aligned
	if out, ok := b.Add(tick(base+100, 100, 10)); !ok || len(out) != 0 {
		t.Fatalf("first tick should open bars: %v %v", out, ok)
	}
	b.Add(tick(base+500, 101, 5))
	b.Add(tick(base+900, 99.5, 5))
	out, ok := b.Add(tick(base+1_200, 100.5, 1))
	if !ok || len(out) != 1 || out[0].Timeframe != models.TF1s {
		t.Fatalf("expected one closed 1s bar, got %v", out)
	}
	got := out[0].Bar
	if got.Open != 100 || got.High != 101 || got.Low != 99.5 || got.Close != 99.5 || got.Volume != 20 {
		t.Fatalf("unexpected 1s bar %+v", got)
	}
	if got.Time != base/1000 {
		t.Fatalf("expected bucket %d, got %d", base/1000, got.Time)
	}

	out, _ = b.Add(tick(base+60_000, 102, 1))
	if len(out) != 2 || out[1].Timeframe != models.TF1m {
		t.Fatalf("expected 1s and 1m closes, got %v", out)
	}
	if m := out[1].Bar; m.Open != 100 || m.High != 101 || m.Low != 99.5 || m.Close != 100.5 || m.Volume != 21 {
		t.Fatalf("unexpected 1m bar %+v", m)
	}
}

func TestBuilderDropsStaleTicks(t *testing.T) {
	b := NewBuilder("SPY")
	b.Add(tick(10_000_000, 100, 1))
	b.Add(tick(10_002_000, 101, 1))
	if _, ok := b.Add(tick(10_000_500, 50, 1)); ok {
		t.Fatal("tick older than the current bucket must be dropped")
	}
	for _, c := range b.Flush() {
		if c.Bar.Low == 50 {
			t.Fatalf("stale tick leaked into %s bar", c.Timeframe)
		}
	}
}

func TestEmittedBarsAreMonotonic(t *testing.T) {
	b := NewBuilder("SPY")
	var last1s, last1m int64
	ms := int64(1_700_000_000_000)
	for i := 0; i < 500; i++ {
		ms += int64((i*37)%900 + 50)
		if i%17 == 0 {
			ms -= 1500 // occasional out-of-order print
		}
		out, _ := b.Add(tick(ms, 100+float64(i%7)/10, 1))
		for _, c := range out {
			prev := &last1s
			if c.Timeframe == models.TF1m {
				prev = &last1m
			}
			if c.Bar.Time <= *prev {
				t.Fatalf("%s bar at %d not after %d", c.Timeframe, c.Bar.Time, *prev)
			}
			*prev = c.Bar.Time
		}
	}
}

func TestFlushDoesNotClose(t *testing.T) {
	b := NewBuilder("SPY")
	b.Add(tick(60_000_000, 100, 1))
	if n := len(b.Flush()); n != 2 {
		t.Fatalf("expected 2 in-progress bars, got %d", n)
	}
	out, _ := b.Add(tick(60_000_100, 101, 1))
	if len(out) != 0 {
		t.Fatalf("flush must not close bars, got %v", out)
	}
}

func TestRollupFiveMinuteRTH(t *testing.T) {
	ny := features.NewYork()
	open := time.Date(2025, 3, 4, 9, 30, 0, 0, ny).Unix()
	r := NewRollup(models.TF5m, models.SessionRTH)
	if _, ok := r.Add(models.Bar{Time: open - 60, Open: 1, High: 1, Low: 1, Close: 1}); ok {
		t.Fatal("pre-market minute must be ignored in RTH")
	}
	for i := int64(0); i < 5; i++ {
		if prev, _ := r.Add(models.Bar{Time: open + i*60, Open: 100 + float64(i), High: 101 + float64(i), Low: 99, Close: 100.5 + float64(i), Volume: 10}); prev != nil {
			t.Fatalf("bucket closed early at minute %d", i)
		}
	}
	prev, ok := r.Add(models.Bar{Time: open + 300, Open: 200, High: 200, Low: 200, Close: 200, Volume: 1})
	if !ok || prev == nil {
		t.Fatal("expected the first 5m bar to close")
	}
	if prev.Time != open || prev.Open != 100 || prev.High != 105 || prev.Close != 104.5 || prev.Volume != 50 {
		t.Fatalf("unexpected 5m bar %+v", *prev)
	}
}
