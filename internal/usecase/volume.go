package usecase

import (
	"context"
	"strings"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/volume"
	"TriggerDesk/pkg/logger"
	"TriggerDesk/pkg/util"
)

// volumeBars covers the baseline, the longest window and ATR warmup.
const volumeBars = 120

// VolumeQuery is one Engine 4 request.
type VolumeQuery struct {
	Symbol string
	TF     string
	Lo, Hi float64
	Mode   string
	Side   models.ZoneSide
}

func VolumeQueryFrom(req models.VolumeRequest) VolumeQuery {
	return VolumeQuery{
		Symbol: util.UpperSymbol(req.Symbol),
		TF:     strings.TrimSpace(req.TF),
		Lo:     req.ZoneLo,
		Hi:     req.ZoneHi,
		Mode:   strings.ToLower(req.Mode),
	}
}

// VolumeService runs Engine 4 and checks the zone echo of its result.
type VolumeService struct {
	bars BarSource
	log  *logger.Logger
}

func NewVolumeService(bars BarSource, log *logger.Logger) *VolumeService {
	if log == nil {
		log = logger.Nop()
	}
	return &VolumeService{bars: bars, log: log.With("volume")}
}

func (s *VolumeService) Evaluate(ctx context.Context, q VolumeQuery) models.VolumeResult {
	in := volume.Input{
		Symbol:    q.Symbol,
		Timeframe: q.TF,
		Mode:      q.Mode,
		Lo:        q.Lo,
		Hi:        q.Hi,
		Side:      q.Side,
	}
	tf, ok := models.ParseTimeframe(q.TF)
	if q.Symbol == "" || !ok {
		in.Timeframe = ""
		return volume.Evaluate(in)
	}
	in.Timeframe = string(tf)
	bars, err := s.bars.GetBars(ctx, q.Symbol, tf, volumeBars)
	if err != nil {
		s.log.Warn("bars unavailable", logger.String("symbol", q.Symbol), logger.String("tf", string(tf)), logger.Error(err))
	}
	in.Bars = bars
	return volume.CheckEcho(volume.Evaluate(in), q.Lo, q.Hi)
}
