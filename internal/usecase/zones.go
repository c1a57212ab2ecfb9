package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/services/zones"
	"TriggerDesk/pkg/logger"
)

// Price sources reported in meta.priceSource.
const (
	PriceFromQuery  = "query"
	PriceFromAnchor = "anchor"
	PriceFromBars   = "bars"
)

// PriceLookup resolves the latest traded price of a symbol.
type PriceLookup interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// ZonesService loads zone libraries and reduces them to the active selection.
type ZonesService struct {
	source    domrepo.ZoneSource
	prices    PriceLookup
	policy    zones.Policy
	windowPts float64
	now       func() time.Time
	log       *logger.Logger
}

func NewZonesService(source domrepo.ZoneSource, prices PriceLookup, policy string, windowPts float64, now func() time.Time, log *logger.Logger) *ZonesService {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ZonesService{
		source:    source,
		prices:    prices,
		policy:    zones.ParsePolicy(policy),
		windowPts: windowPts,
		now:       now,
		log:       log.With("zones"),
	}
}

// Active fetches the zone feed for symbol and selects the active zone for tf.
// An explicit price wins over the feed anchor, which wins over the last 1m close.
func (s *ZonesService) Active(ctx context.Context, symbol, tf string, price *float64) (models.ActiveZoneSelection, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.TrimSpace(tf) == "" {
		return models.ActiveZoneSelection{}, fmt.Errorf("%w: symbol and tf are required", models.ErrInvalidInput)
	}
	feed, err := s.source.FetchZones(ctx, symbol)
	if err != nil {
		return models.ActiveZoneSelection{}, fmt.Errorf("zones for %s: %w", symbol, err)
	}

	var current float64
	var from string
	switch {
	case price != nil:
		current, from = *price, PriceFromQuery
	case feed.PriceAnchor != nil:
		current, from = *feed.PriceAnchor, PriceFromAnchor
	case s.prices != nil:
		p, err := s.prices.LastPrice(ctx, symbol)
		if err != nil {
			return models.ActiveZoneSelection{}, fmt.Errorf("price for %s: %w", symbol, err)
		}
		current, from = p, PriceFromBars
	default:
		return models.ActiveZoneSelection{}, fmt.Errorf("%w: no price for %s", models.ErrUpstreamUnavailable, symbol)
	}

	sel, err := zones.Reduce(zones.Input{
		Institutional: feed.Institutional,
		Shelves:       feed.Shelves,
		CurrentPrice:  current,
		Timeframe:     tf,
		WindowPts:     s.windowPts,
		Policy:        s.policy,
	})
	if err != nil {
		return models.ActiveZoneSelection{}, err
	}
	sel.Meta.AsOfUTC = s.now().UTC().Format(time.RFC3339)
	sel.Meta.PriceSource = from
	s.log.Debug("zones reduced",
		logger.String("symbol", symbol),
		logger.String("tf", tf),
		logger.Float64("price", current),
		logger.Bool("active", sel.Active != nil),
	)
	return sel, nil
}
