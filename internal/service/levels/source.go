package levels

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/service/upstream"
	"TriggerDesk/pkg/logger"
)

// Source implements repository.ZoneSource over the levels and shelves endpoints.
type Source struct {
	levels  *upstream.Base
	shelves *upstream.Base
	log     *logger.Logger
}

func NewSource(levels, shelves *upstream.Base, log *logger.Logger) *Source {
	if log == nil {
		log = logger.Nop()
	}
	return &Source{levels: levels, shelves: shelves, log: log.With("levels")}
}

type document struct {
	Levels []json.RawMessage `json:"levels"`
	Meta   struct {
		CurrentPriceAnchor *float64 `json:"current_price_anchor"`
	} `json:"meta"`
}

// FetchZones loads institutional zones and, when configured, shelves.
// A failing shelves endpoint degrades to no shelves.
func (s *Source) FetchZones(ctx context.Context, symbol string) (repository.ZoneFeed, error) {
	q := url.Values{"symbol": {strings.ToUpper(symbol)}}
	body, err := s.levels.GetRaw(ctx, "", q)
	if err != nil {
		return repository.ZoneFeed{}, err
	}
	inst, anchor, err := Decode(body, models.KindInstitutional)
	if err != nil {
		return repository.ZoneFeed{}, err
	}
	feed := repository.ZoneFeed{Institutional: inst, PriceAnchor: anchor}
	if !s.shelves.Configured() {
		return feed, nil
	}
	body, err = s.shelves.GetRaw(ctx, "", q)
	if err != nil {
		s.log.Warn("shelves unavailable", logger.String("symbol", symbol), logger.Error(err))
		return feed, nil
	}
	shelves, _, err := Decode(body, models.KindShelf)
	if err != nil {
		s.log.Warn("shelves undecodable", logger.String("symbol", symbol), logger.Error(err))
		return feed, nil
	}
	feed.Shelves = shelves
	return feed, nil
}

// Decode canonicalizes a {levels, meta} document. Entries without usable bounds are dropped.
func Decode(body []byte, defaultKind models.ZoneKind) ([]models.Zone, *float64, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("levels: decode: %w", err)
	}
	out := make([]models.Zone, 0, len(doc.Levels))
	for _, raw := range doc.Levels {
		z, ok := decodeZone(raw, defaultKind)
		if ok {
			out = append(out, z)
		}
	}
	anchor := doc.Meta.CurrentPriceAnchor
	if anchor != nil && (math.IsNaN(*anchor) || math.IsInf(*anchor, 0)) {
		anchor = nil
	}
	return out, anchor, nil
}

var known = map[string]bool{
	"id": true, "lo": true, "hi": true, "low": true, "high": true, "priceRange": true,
	"strength": true, "timeframe": true, "tf": true, "kind": true, "type": true, "side": true,
}

func decodeZone(raw json.RawMessage, defaultKind models.ZoneKind) (models.Zone, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Zone{}, false
	}
	z := models.Zone{Kind: defaultKind}
	str := func(keys ...string) string {
		for _, k := range keys {
			var v string
			if b, ok := fields[k]; ok && json.Unmarshal(b, &v) == nil && v != "" {
				return v
			}
		}
		return ""
	}
	num := func(keys ...string) (float64, bool) {
		for _, k := range keys {
			var v float64
			if b, ok := fields[k]; ok && json.Unmarshal(b, &v) == nil {
				return v, true
			}
		}
		return 0, false
	}

	lo, okLo := num("lo", "low")
	hi, okHi := num("hi", "high")
	if !okLo || !okHi {
		lo, hi, okLo = priceRange(fields["priceRange"])
		okHi = okLo
	}
	if !okLo || !okHi {
		return models.Zone{}, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	z.Lo, z.Hi = lo, hi
	if !z.Finite() {
		return models.Zone{}, false
	}
	z.ID = str("id")
	if v, ok := num("strength"); ok {
		z.Strength = math.Max(0, math.Min(100, v))
	}
	z.Timeframe = str("timeframe", "tf")
	if k := canonicalKind(str("kind", "type")); k != "" {
		z.Kind = k
	}
	switch strings.ToLower(str("side")) {
	case "demand", "support", "bullish":
		z.Side = models.SideDemand
	case "supply", "resistance", "bearish":
		z.Side = models.SideSupply
	}
	for k, b := range fields {
		if known[k] {
			continue
		}
		var v any
		if json.Unmarshal(b, &v) == nil {
			if z.Extra == nil {
				z.Extra = map[string]any{}
			}
			z.Extra[k] = v
		}
	}
	return z, true
}

// priceRange accepts [a,b] in either order or {high,low}.
func priceRange(raw json.RawMessage) (float64, float64, bool) {
	if len(raw) == 0 {
		return 0, 0, false
	}
	var pair []float64
	if json.Unmarshal(raw, &pair) == nil && len(pair) == 2 {
		return math.Min(pair[0], pair[1]), math.Max(pair[0], pair[1]), true
	}
	var obj struct {
		High *float64 `json:"high"`
		Low  *float64 `json:"low"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.High != nil && obj.Low != nil {
		return *obj.Low, *obj.High, true
	}
	return 0, 0, false
}

func canonicalKind(s string) models.ZoneKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "institutional":
		return models.KindInstitutional
	case "negotiated":
		return models.KindNegotiated
	case "shelf":
		return models.KindShelf
	case "accumulation":
		return models.KindAccumulation
	case "distribution":
		return models.KindDistribution
	}
	return ""
}
