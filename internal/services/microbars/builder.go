// Package microbars aggregates trade ticks into 1s and 1m bars and folds
// closed minutes into higher timeframes.
package microbars

import (
	"math"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/features"
)

// Closed is a bar emitted when its bucket rolls over.
type Closed struct {
	Timeframe models.Timeframe
	Bar       models.Bar
}

type current struct {
	size int64
	tf   models.Timeframe
	bar  *models.Bar
}

// apply folds the tick in and returns the previous bar when the bucket rolls.
// Ticks older than the current bucket are rejected.
func (c *current) apply(sec int64, price, size float64) (*models.Bar, bool) {
	bucket := sec - sec%c.size
	if c.bar != nil && bucket < c.bar.Time {
		return nil, false
	}
	if c.bar == nil || c.bar.Time < bucket {
		prev := c.bar
		c.bar = &models.Bar{Time: bucket, Open: price, High: price, Low: price, Close: price, Volume: size}
		return prev, true
	}
	c.bar.High = math.Max(c.bar.High, price)
	c.bar.Low = math.Min(c.bar.Low, price)
	c.bar.Close = price
	c.bar.Volume += size
	return nil, true
}

// Builder keeps the current 1s and 1m bar of one symbol. It is not safe for
// concurrent use; the live engine owns it from its event loop.
type Builder struct {
	symbol string
	sec    current
	min    current
	last   int64
}

func NewBuilder(symbol string) *Builder {
	return &Builder{
		symbol: symbol,
		sec:    current{size: 1, tf: models.TF1s},
		min:    current{size: 60, tf: models.TF1m},
	}
}

func (b *Builder) Symbol() string { return b.symbol }

// Add folds a tick into both bars and returns the bars it closed, 1s first.
// The second return is false when the tick was dropped as stale or invalid.
func (b *Builder) Add(t models.Tick) ([]Closed, bool) {
	if t.TimeMs <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return nil, false
	}
	sec := t.TimeMs / 1000
	if b.sec.bar != nil && sec < b.sec.bar.Time {
		return nil, false
	}
	size := t.Size
	if size < 0 || math.IsNaN(size) {
		size = 0
	}
	var out []Closed
	for _, c := range []*current{&b.sec, &b.min} {
		prev, ok := c.apply(sec, t.Price, size)
		if !ok {
			return out, false
		}
		if prev != nil {
			out = append(out, Closed{Timeframe: c.tf, Bar: *prev})
		}
	}
	b.last = t.TimeMs
	return out, true
}

// Flush returns copies of the in-progress bars without closing them.
func (b *Builder) Flush() []Closed {
	var out []Closed
	for _, c := range []*current{&b.sec, &b.min} {
		if c.bar != nil {
			out = append(out, Closed{Timeframe: c.tf, Bar: *c.bar})
		}
	}
	return out
}

// LastTickMs is the time of the most recent accepted tick.
func (b *Builder) LastTickMs() int64 { return b.last }

// Rollup folds closed 1m bars into one higher timeframe using the session
// anchoring rules.
type Rollup struct {
	tf      models.Timeframe
	session models.Session
	cur     *models.Bar
}

func NewRollup(tf models.Timeframe, session models.Session) *Rollup {
	return &Rollup{tf: tf, session: session}
}

// Add folds a closed minute bar and returns the higher-timeframe bar it
// closed, if any. Minutes without a bucket or older than the tail are ignored.
func (r *Rollup) Add(m models.Bar) (*models.Bar, bool) {
	start, ok := features.BucketStart(m.Time, r.tf, r.session)
	if !ok {
		return nil, false
	}
	if r.cur != nil && start < r.cur.Time {
		return nil, false
	}
	if r.cur == nil || r.cur.Time < start {
		prev := r.cur
		nb := m
		nb.Time = start
		r.cur = &nb
		return prev, true
	}
	r.cur.High = math.Max(r.cur.High, m.High)
	r.cur.Low = math.Min(r.cur.Low, m.Low)
	r.cur.Close = m.Close
	r.cur.Volume += m.Volume
	return nil, true
}

// Flush returns a copy of the in-progress bar.
func (r *Rollup) Flush() (models.Bar, bool) {
	if r.cur == nil {
		return models.Bar{}, false
	}
	return *r.cur, true
}
