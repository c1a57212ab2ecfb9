package models

import "math"

// ZoneKind classifies a price band.
type ZoneKind string

const (
	KindInstitutional ZoneKind = "INSTITUTIONAL"
	KindNegotiated    ZoneKind = "NEGOTIATED"
	KindShelf         ZoneKind = "SHELF"
	KindAccumulation  ZoneKind = "accumulation"
	KindDistribution  ZoneKind = "distribution"
)

// ZoneSide is the expected reaction side of a zone.
type ZoneSide string

const (
	SideDemand ZoneSide = "demand"
	SideSupply ZoneSide = "supply"
)

// Zone is an inclusive price band. Hi >= Lo; zero width is tolerated.
type Zone struct {
	ID        string         `json:"id"`
	Lo        float64        `json:"lo"`
	Hi        float64        `json:"hi"`
	Strength  float64        `json:"strength"`
	Timeframe string         `json:"timeframe,omitempty"`
	Kind      ZoneKind       `json:"kind"`
	Side      ZoneSide       `json:"side,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (z Zone) Contains(p float64) bool { return p >= z.Lo && p <= z.Hi }

func (z Zone) Width() float64 { return z.Hi - z.Lo }

func (z Zone) Mid() float64 { return (z.Lo + z.Hi) / 2 }

// Overlaps reports whether [lo,hi] intersects the zone band.
func (z Zone) Overlaps(lo, hi float64) bool { return z.Hi >= lo && z.Lo <= hi }

// EdgeDistance is 0 inside the band, otherwise the distance to the nearest edge.
func (z Zone) EdgeDistance(p float64) float64 {
	switch {
	case p < z.Lo:
		return z.Lo - p
	case p > z.Hi:
		return p - z.Hi
	default:
		return 0
	}
}

// IsShelf reports whether the zone is an accumulation/distribution shelf.
func (z Zone) IsShelf() bool {
	return z.Kind == KindAccumulation || z.Kind == KindDistribution || z.Kind == KindShelf
}

// EffectiveSide falls back to demand when no side was supplied.
func (z Zone) EffectiveSide() ZoneSide {
	if z.Side == SideSupply {
		return SideSupply
	}
	return SideDemand
}

// Finite reports whether both bounds are usable numbers.
func (z Zone) Finite() bool {
	return !math.IsNaN(z.Lo) && !math.IsNaN(z.Hi) && !math.IsInf(z.Lo, 0) && !math.IsInf(z.Hi, 0)
}

// ZoneGroup is the institutional/shelf pair used by render and suppressed.
type ZoneGroup struct {
	Institutional []Zone `json:"institutional"`
	Shelves       []Zone `json:"shelves"`
}

// SelectionMeta describes how a selection was produced.
type SelectionMeta struct {
	AsOfUTC      string  `json:"asOfUtc"`
	TFInput      string  `json:"tf_input"`
	TFUsed       string  `json:"tf_used"`
	CurrentPrice float64 `json:"currentPrice"`
	Policy       string  `json:"policy"`
	WindowPts    float64 `json:"windowPts,omitempty"`
	PriceSource  string  `json:"priceSource,omitempty"`
}

// ActiveZoneSelection is the Zone Reducer output.
type ActiveZoneSelection struct {
	OK         bool           `json:"ok"`
	Active     *Zone          `json:"active"`
	Render     ZoneGroup      `json:"render"`
	Suppressed ZoneGroup      `json:"suppressed"`
	Meta       *SelectionMeta `json:"meta,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ZoneBounds is the echo used by Engine 4 staleness checks.
type ZoneBounds struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}
