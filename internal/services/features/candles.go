package features

import (
	"math"

	"TriggerDesk/internal/domain/models"
)

func UpperWick(b models.Bar) float64 { return b.High - math.Max(b.Open, b.Close) }

func LowerWick(b models.Bar) float64 { return math.Min(b.Open, b.Close) - b.Low }

// IsWickProbe reports a rejection probe through a zone edge. For the supply
// side the upper wick must be at least the body, the high must pierce hi and
// the close must stay at or below hi; demand mirrors this at lo.
func IsWickProbe(b models.Bar, lo, hi float64, side models.ZoneSide) bool {
	body := b.Body()
	if side == models.SideSupply {
		return UpperWick(b) >= body && b.High > hi && b.Close <= hi
	}
	return LowerWick(b) >= body && b.Low < lo && b.Close >= lo
}

// IsControlCandle reports a wide-body candle closing near its extreme in the
// expected direction: body/range >= 0.65, body/atr >= 0.25 and the close
// within 20% of the range from the extreme.
func IsControlCandle(b models.Bar, atr float64, side models.ZoneSide) bool {
	rng := b.Range()
	if rng <= 0 || atr <= 0 {
		return false
	}
	body := b.Body()
	if body/rng < 0.65 || body/atr < 0.25 {
		return false
	}
	if side == models.SideSupply {
		return b.Close < b.Open && b.Close-b.Low <= 0.2*rng
	}
	return b.Close > b.Open && b.High-b.Close <= 0.2*rng
}

// RangeHighLow returns the max high and min low across bars.
func RangeHighLow(bars []models.Bar) (float64, float64) {
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}

// FindTouch returns the index of the first bar of the most recent run of bars
// whose range intersects [lo,hi], or -1 when no bar touches.
func FindTouch(bars []models.Bar, lo, hi float64) int {
	hit := func(b models.Bar) bool { return b.High >= lo && b.Low <= hi }
	last := -1
	for i := len(bars) - 1; i >= 0; i-- {
		if hit(bars[i]) {
			last = i
			break
		}
	}
	if last < 0 {
		return -1
	}
	for last > 0 && hit(bars[last-1]) {
		last--
	}
	return last
}
