package models

import (
	"math"
	"strings"
)

// Timeframe is a bar bucket size label ("1s", "1m", "5m", ...).
type Timeframe string

const (
	TF1s  Timeframe = "1s"
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Seconds returns the bucket size, or 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 {
	switch tf {
	case TF1s:
		return 1
	case TF1m:
		return 60
	case TF5m:
		return 300
	case TF15m:
		return 900
	case TF30m:
		return 1800
	case TF1h:
		return 3600
	case TF4h:
		return 4 * 3600
	case TF1d:
		return 86400
	default:
		return 0
	}
}

// Intraday reports whether the timeframe is shorter than a session day.
func (tf Timeframe) Intraday() bool {
	s := tf.Seconds()
	return s > 0 && s < 86400
}

// ParseTimeframe accepts the aliases the upstream sources use.
func ParseTimeframe(s string) (Timeframe, bool) {
	switch strings.TrimSpace(s) {
	case "1s":
		return TF1s, true
	case "1m", "1min", "1":
		return TF1m, true
	case "5m", "5min", "5":
		return TF5m, true
	case "15m", "15min", "15":
		return TF15m, true
	case "30m", "30min", "30":
		return TF30m, true
	case "1h", "60m", "60", "1H":
		return TF1h, true
	case "4h", "240m", "240", "4H":
		return TF4h, true
	case "1d", "1D", "D", "day":
		return TF1d, true
	}
	return "", false
}

// Session selects how intraday buckets are anchored.
type Session string

const (
	SessionRTH Session = "rth"
	SessionETH Session = "eth"
)

// Bar is an OHLCV record aligned to a timeframe bucket. Time is unix seconds.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether every numeric field is finite and the range is coherent.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Time > 0 && b.High >= b.Low
}

func (b Bar) Range() float64 { return b.High - b.Low }

func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

// Tick is a single trade print. TimeMs is unix milliseconds.
type Tick struct {
	Symbol string  `json:"sym"`
	TimeMs int64   `json:"t"`
	Price  float64 `json:"p"`
	Size   float64 `json:"s"`
}

// StreamKind tags a market stream message.
type StreamKind string

const (
	StreamTrade  StreamKind = "T"
	StreamMinute StreamKind = "AM"
	StreamStatus StreamKind = "status"
)

// StreamMessage is a canonicalized market stream frame.
type StreamMessage struct {
	Kind    StreamKind
	Symbol  string
	Tick    *Tick
	Bar     *Bar
	Status  string
	Message string
}
