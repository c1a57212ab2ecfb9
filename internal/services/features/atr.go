package features

import (
	"math"

	"TriggerDesk/internal/domain/models"
)

// TrueRange returns max(h-l, |h-pc|, |l-pc|).
func TrueRange(b models.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATR computes the Wilder-smoothed average true range of the whole series.
// It reports false when fewer than period+2 bars are available.
func ATR(bars []models.Bar, period int) (float64, bool) {
	series := ATRSeries(bars, period)
	if len(series) == 0 {
		return 0, false
	}
	last := series[len(series)-1]
	if math.IsNaN(last) || last <= 0 {
		return 0, false
	}
	return last, true
}

// ATRSeries returns the ATR value as of each bar, NaN until enough bars exist.
func ATRSeries(bars []models.Bar, period int) []float64 {
	if period <= 0 || len(bars) < period+2 {
		return nil
	}
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	sum := 0.0
	var atr float64
	for i := 1; i < len(bars); i++ {
		tr := TrueRange(bars[i], bars[i-1].Close)
		switch {
		case i < period:
			sum += tr
		case i == period:
			sum += tr
			atr = sum / float64(period)
			if i+1 >= period+2 {
				out[i] = atr
			}
		default:
			atr = (atr*float64(period-1) + tr) / float64(period)
			if i+1 >= period+2 {
				out[i] = atr
			}
		}
	}
	return out
}

// ATRAt returns the ATR as of index idx, falling back to fallback when the
// series has no value there.
func ATRAt(series []float64, idx int, fallback float64) float64 {
	if idx >= 0 && idx < len(series) && !math.IsNaN(series[idx]) && series[idx] > 0 {
		return series[idx]
	}
	return fallback
}
