package features

import (
	"math"
	"sort"
	"time"

	"TriggerDesk/internal/domain/models"
)

// MaxFutureSkew is how far ahead of now a bar may be dated before it is dropped.
const MaxFutureSkew = time.Hour

// NormalizeEpoch converts a timestamp of unknown unit to unix seconds by magnitude.
func NormalizeEpoch(v float64) int64 {
	a := math.Abs(v)
	switch {
	case a > 1e18:
		return int64(v / 1e9)
	case a > 1e15:
		return int64(v / 1e6)
	case a > 1e12:
		return int64(v / 1e3)
	default:
		return int64(v)
	}
}

// NormalizeEpochMillis is NormalizeEpoch for unix milliseconds.
func NormalizeEpochMillis(v float64) int64 {
	a := math.Abs(v)
	switch {
	case a > 1e18:
		return int64(v / 1e6)
	case a > 1e15:
		return int64(v / 1e3)
	case a > 1e12:
		return int64(v)
	default:
		return int64(v * 1e3)
	}
}

// SanitizeBars normalizes timestamps, drops invalid or future bars and returns
// the series ascending and deduplicated by time (last write wins).
func SanitizeBars(in []models.Bar, now time.Time) []models.Bar {
	limit := now.Add(MaxFutureSkew).Unix()
	byTime := make(map[int64]models.Bar, len(in))
	for _, b := range in {
		b.Time = NormalizeEpoch(float64(b.Time))
		if !b.Valid() || b.Time > limit {
			continue
		}
		byTime[b.Time] = b
	}
	out := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Tail returns at most n trailing bars.
func Tail(bars []models.Bar, n int) []models.Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
