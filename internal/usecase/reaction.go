package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/reaction"
	"TriggerDesk/internal/services/zones"
	"TriggerDesk/pkg/logger"
	"TriggerDesk/pkg/util"
)

// atrWarmup is the extra history fetched so ATR is available at the touch.
const atrWarmup = 30

// BarSource is the read side of the bar store.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

// ZoneResolver picks the active zone for a symbol and timeframe.
type ZoneResolver interface {
	Active(ctx context.Context, symbol, tf string, price *float64) (models.ActiveZoneSelection, error)
}

// ReactionQuery is one Engine 3 request after parsing.
type ReactionQuery struct {
	Symbol     string
	TF         string
	Mode       reaction.Mode
	StrategyID string
	// Lo/Hi make the zone explicit; otherwise Zone, then the resolver, decide.
	Lo, Hi *float64
	ZoneID string
	Side   models.ZoneSide
	// Zone is an already resolved active zone; NOT_IN_ZONE applies to it.
	Zone *models.Zone
}

// ParseReactionRequest validates the loose query parameters of GET /reaction.
func ParseReactionRequest(req models.ReactionRequest, defaultStrategy string) (ReactionQuery, error) {
	q := ReactionQuery{
		Symbol:     util.UpperSymbol(req.Symbol),
		TF:         strings.TrimSpace(req.TF),
		StrategyID: req.StrategyID,
		ZoneID:     req.ZoneID,
		Side:       models.ZoneSide(strings.ToLower(req.Side)),
	}
	if q.StrategyID == "" {
		q.StrategyID = defaultStrategy
	}
	q.Mode = reaction.ParseMode(req.Mode, q.StrategyID)
	if req.Lo != "" || req.Hi != "" {
		lo, okLo := util.ParseFloat(req.Lo)
		hi, okHi := util.ParseFloat(req.Hi)
		if !okLo || !okHi {
			return q, fmt.Errorf("%w: lo and hi must both be finite numbers", models.ErrInvalidInput)
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		q.Lo, q.Hi = &lo, &hi
	}
	return q, nil
}

type stageKey struct {
	symbol, tf, zone string
}

// ReactionService runs Engine 3 against bars from the store. It remembers the
// last stage per symbol, timeframe and zone so scalp confirmation can require
// an earlier arm.
type ReactionService struct {
	bars          BarSource
	zones         ZoneResolver
	breakDepthATR float64
	log           *logger.Logger

	mu     sync.Mutex
	stages map[stageKey]models.Stage
}

func NewReactionService(bars BarSource, zr ZoneResolver, breakDepthATR float64, log *logger.Logger) *ReactionService {
	if log == nil {
		log = logger.Nop()
	}
	return &ReactionService{
		bars:          bars,
		zones:         zr,
		breakDepthATR: breakDepthATR,
		log:           log.With("reaction"),
		stages:        make(map[stageKey]models.Stage),
	}
}

// Evaluate never fails: resolution and data problems come back as reason
// codes on an IDLE result.
func (s *ReactionService) Evaluate(ctx context.Context, q ReactionQuery) models.ReactionResult {
	in := reaction.Input{
		Symbol:        q.Symbol,
		Timeframe:     q.TF,
		Mode:          q.Mode,
		Side:          q.Side,
		BreakDepthATR: s.breakDepthATR,
	}
	tf, ok := models.ParseTimeframe(q.TF)
	if q.Symbol == "" || !ok {
		in.Timeframe = ""
		return reaction.Evaluate(in)
	}
	in.Timeframe = string(tf)

	switch {
	case q.Lo != nil && q.Hi != nil:
		z := models.Zone{ID: q.ZoneID, Lo: *q.Lo, Hi: *q.Hi, Timeframe: string(tf), Kind: models.KindInstitutional, Side: q.Side}
		if z.ID == "" {
			z.ID = zones.ContentHash(z)
		}
		in.Zone = &z
		in.ExplicitZone = true
	case q.Zone != nil:
		z := *q.Zone
		in.Zone = &z
	case s.zones != nil:
		sel, err := s.zones.Active(ctx, q.Symbol, string(tf), nil)
		if err != nil {
			s.log.Warn("zone resolution failed", logger.String("symbol", q.Symbol), logger.Error(err))
		} else {
			in.Zone = sel.Active
		}
	}

	limit := reaction.PresetFor(q.Mode).LookbackBars + atrWarmup
	bars, err := s.bars.GetBars(ctx, q.Symbol, tf, limit)
	if err != nil {
		s.log.Warn("bars unavailable", logger.String("symbol", q.Symbol), logger.String("tf", string(tf)), logger.Error(err))
	}
	in.Bars = bars

	key := stageKey{symbol: q.Symbol, tf: string(tf)}
	if in.Zone != nil {
		key.zone = in.Zone.ID
	}
	s.mu.Lock()
	in.PrevStage = s.stages[key]
	s.mu.Unlock()

	res := reaction.Evaluate(in)
	if res.OK {
		s.mu.Lock()
		s.stages[key] = res.Stage
		s.mu.Unlock()
	}
	return res
}
