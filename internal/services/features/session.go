package features

import (
	"sort"
	"time"
	_ "time/tzdata"

	"TriggerDesk/internal/domain/models"
)

var newYork = loadLocation("America/New_York", -5*3600)

func loadLocation(name string, fallbackOffset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, fallbackOffset)
	}
	return loc
}

// NewYork returns the exchange time zone.
func NewYork() *time.Location { return newYork }

const (
	rthOpenMinutes  = 9*60 + 30
	rthCloseMinutes = 16 * 60
)

// BucketStart returns the start of the bucket that contains ts (unix seconds).
// In RTH mode intraday buckets anchor at 09:30 New York and ticks outside
// [09:30,16:00) have no bucket. ETH buckets are continuous from the epoch.
// Daily buckets anchor at New York midnight in both modes.
func BucketStart(ts int64, tf models.Timeframe, session models.Session) (int64, bool) {
	size := tf.Seconds()
	if size <= 0 {
		return 0, false
	}
	if tf == models.TF1d {
		t := time.Unix(ts, 0).In(newYork)
		mid := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, newYork)
		return mid.Unix(), true
	}
	if session != models.SessionRTH {
		return ts - mod(ts, size), true
	}
	t := time.Unix(ts, 0).In(newYork)
	mins := t.Hour()*60 + t.Minute()
	if mins < rthOpenMinutes || mins >= rthCloseMinutes {
		return 0, false
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, newYork).Unix()
	return open + ((ts-open)/size)*size, true
}

// InRTH reports whether ts falls inside regular trading hours.
func InRTH(ts int64) bool {
	_, ok := BucketStart(ts, models.TF1m, models.SessionRTH)
	return ok
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Rebucket folds ascending source bars into tf buckets with the session rules.
// Source bars without a bucket (outside RTH in RTH mode) are skipped.
func Rebucket(bars []models.Bar, tf models.Timeframe, session models.Session) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		start, ok := BucketStart(b.Time, tf, session)
		if !ok {
			continue
		}
		n := len(out)
		if n > 0 && out[n-1].Time == start {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		if n > 0 && out[n-1].Time > start {
			continue
		}
		nb := b
		nb.Time = start
		out = append(out, nb)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
