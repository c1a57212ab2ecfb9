package volume

import (
	"math"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/features"
)

const (
	DefaultBaselineBars = 20
	ConfirmScore        = 7.0
	MaxScore            = 15.0
	EchoTolerance       = 1e-6

	spikeRatio      = 1.8
	absorptionRatio = 1.5
	absorptionNet   = 0.25
	weakDisplace    = 0.30
	breakDepthATR   = 0.25
	trapScoreCap    = 3.0

	ReasonInvalidZone    = "INVALID_ZONE"
	ReasonVolumeSpike    = "VOLUME_SPIKE"
	ReasonLiquidityTrap  = "LIQUIDITY_TRAP"
	ReasonAbsorption     = "ABSORPTION"
	ReasonInitiative     = "INITIATIVE_MOVE"
	ReasonContraction    = "PULLBACK_CONTRACTION"
	ReasonExpansion      = "REVERSAL_EXPANSION"
	ReasonDistribution   = "DISTRIBUTION"
	ReasonDivergence     = "VOLUME_DIVERGENCE"
	ReasonVolumeConfirm  = "VOLUME_CONFIRMED"
	ReasonStructureBreak = "STRUCTURE_FAILURE"
)

var windowByMode = map[string]int{"scalp": 5, "swing": 10, "long": 20}

// Input is one Engine 4 evaluation.
type Input struct {
	Symbol    string
	Timeframe string
	Mode      string
	Bars      []models.Bar
	Lo, Hi    float64
	// Side defaults to the side price approached from.
	Side         models.ZoneSide
	ATR          float64
	BaselineBars int
}

func newResult(in Input) models.VolumeResult {
	return models.VolumeResult{
		OK:          true,
		Symbol:      in.Symbol,
		Timeframe:   in.Timeframe,
		Mode:        in.Mode,
		Regime:      models.RegimeNeutral,
		Zone:        models.ZoneBounds{Lo: in.Lo, Hi: in.Hi},
		ReasonCodes: []string{},
	}
}

func fail(in Input, code string) models.VolumeResult {
	r := newResult(in)
	r.OK = false
	r.Error = code
	r.ReasonCodes = append(r.ReasonCodes, code)
	return r
}

// Evaluate classifies volume behavior around the zone touch.
func Evaluate(in Input) models.VolumeResult {
	if in.Mode == "" {
		in.Mode = "swing"
	}
	if in.Symbol == "" || in.Timeframe == "" {
		return fail(in, models.ReasonMissingSymbolOrTF)
	}
	if math.IsNaN(in.Lo) || math.IsNaN(in.Hi) || math.IsInf(in.Lo, 0) || math.IsInf(in.Hi, 0) || in.Lo > in.Hi {
		return fail(in, ReasonInvalidZone)
	}
	if len(in.Bars) < 3 {
		return fail(in, models.ReasonBarsUnavailable)
	}
	atr := in.ATR
	if atr <= 0 {
		var ok bool
		if atr, ok = features.ATR(in.Bars, 14); !ok {
			return fail(in, models.ReasonATRUnavailable)
		}
	}
	baselineN := in.BaselineBars
	if baselineN <= 0 {
		baselineN = DefaultBaselineBars
	}
	windowN, ok := windowByMode[in.Mode]
	if !ok {
		windowN = windowByMode["swing"]
	}

	res := newResult(in)
	bars := in.Bars
	touch := features.FindTouch(bars, in.Lo, in.Hi)
	if touch < 0 {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonNoTouch)
		return res
	}
	side := in.Side
	if side == "" {
		side = approachSide(bars, touch, in.Lo)
	}

	before := bars[max(0, touch-baselineN):touch]
	window := bars[touch:]
	if len(window) > windowN {
		window = window[:windowN]
	}
	if len(before) == 0 {
		before = window
	}
	baseline := meanVolume(before)
	peakIdx, peak := 0, 0.0
	for i, b := range window {
		if b.Volume > peak {
			peakIdx, peak = i, b.Volume
		}
	}
	ratio := 0.0
	if baseline > 0 {
		ratio = peak / baseline
	}
	last := window[len(window)-1]
	net := math.Abs(last.Close-window[0].Open) / atr
	hi, lo := features.RangeHighLow(window)
	disp := hi - in.Hi
	if side == models.SideSupply {
		disp = in.Lo - lo
	}
	disp = math.Max(0, disp) / atr
	failure := structuralFailure(window, in.Lo, in.Hi, side, breakDepthATR*atr)

	var f models.VolumeFlags
	spike := ratio >= spikeRatio
	f.LiquidityTrap = spike && (failure || disp < weakDisplace)
	f.AbsorptionDetected = ratio >= absorptionRatio && net < absorptionNet
	f.InitiativeMoveConfirmed = spike && !failure && disp >= 0.75
	after := window[peakIdx+1:]
	f.PullbackContraction = !failure && disp >= 0.40 && len(after) >= 2 && meanVolume(after) < baseline
	approach := bars[max(0, touch-3):touch]
	f.ReversalExpansion = !failure && len(approach) > 0 && meanVolume(approach) < baseline &&
		ratio >= absorptionRatio && disp >= 0.75
	up, down := directionalVolume(window)
	against, with := down, up
	if side == models.SideSupply {
		against, with = up, down
	}
	f.DistributionDetected = ratio >= 1.2 && against > 1.5*with
	f.VolumeDivergence = disp >= 0.40 && extremeVolume(window, side) < baseline && !spike
	res.Flags = f

	score := spikePoints(ratio) + displacementPoints(disp)
	if !failure {
		score += 2
	} else {
		res.ReasonCodes = append(res.ReasonCodes, ReasonStructureBreak)
	}
	if f.InitiativeMoveConfirmed {
		score += 2
	}
	if f.ReversalExpansion {
		score += 2
	}
	if f.PullbackContraction {
		score++
	}
	if f.DistributionDetected {
		score -= 2
	}
	if f.VolumeDivergence {
		score--
	}
	if f.AbsorptionDetected {
		score--
	}
	score = math.Max(0, math.Min(MaxScore, score))
	if f.LiquidityTrap {
		score = math.Min(score, trapScoreCap)
	}
	res.VolumeScore = math.Round(score*10) / 10
	res.VolumeConfirmed = res.VolumeScore >= ConfirmScore && !f.LiquidityTrap
	res.Regime = regimeOf(f)
	res.ReasonCodes = append(res.ReasonCodes, flagReasons(f, spike)...)
	if res.VolumeConfirmed {
		res.ReasonCodes = append(res.ReasonCodes, ReasonVolumeConfirm)
	}
	res.Diagnostics = &models.VolumeDiagnostics{
		BaselineVolume:  baseline,
		MaxVolume:       peak,
		SpikeRatio:      round3(ratio),
		NetChangeAtr:    round3(net),
		DisplacementAtr: round3(disp),
		TouchIndex:      touch,
		WindowBars:      len(window),
	}
	return res
}

// CheckEcho marks a result stale when its echoed zone differs from the
// requested bounds.
func CheckEcho(res models.VolumeResult, lo, hi float64) models.VolumeResult {
	if math.Abs(res.Zone.Lo-lo) <= EchoTolerance && math.Abs(res.Zone.Hi-hi) <= EchoTolerance {
		return res
	}
	res.OK = false
	res.VolumeConfirmed = false
	res.Error = models.ErrZoneMismatchStale.Error()
	res.ReasonCodes = append(res.ReasonCodes, models.ErrZoneMismatchStale.Error())
	return res
}

func regimeOf(f models.VolumeFlags) models.VolumeRegime {
	switch {
	case f.ReversalExpansion:
		return models.RegimeReversalExpansion
	case f.PullbackContraction:
		return models.RegimePullbackContraction
	case f.InitiativeMoveConfirmed:
		return models.RegimeInitiativeMove
	case f.DistributionDetected:
		return models.RegimeDistribution
	case f.AbsorptionDetected:
		return models.RegimeAbsorption
	case f.LiquidityTrap:
		return models.RegimeLiquidityTrap
	case f.VolumeDivergence:
		return models.RegimeVolumeDivergence
	default:
		return models.RegimeNeutral
	}
}

func flagReasons(f models.VolumeFlags, spike bool) []string {
	var out []string
	add := func(on bool, code string) {
		if on {
			out = append(out, code)
		}
	}
	add(spike, ReasonVolumeSpike)
	add(f.LiquidityTrap, ReasonLiquidityTrap)
	add(f.AbsorptionDetected, ReasonAbsorption)
	add(f.InitiativeMoveConfirmed, ReasonInitiative)
	add(f.PullbackContraction, ReasonContraction)
	add(f.ReversalExpansion, ReasonExpansion)
	add(f.DistributionDetected, ReasonDistribution)
	add(f.VolumeDivergence, ReasonDivergence)
	return out
}

func approachSide(bars []models.Bar, touch int, lo float64) models.ZoneSide {
	if touch > 0 && bars[touch-1].Close < lo {
		return models.SideSupply
	}
	return models.SideDemand
}

func structuralFailure(window []models.Bar, lo, hi float64, side models.ZoneSide, depth float64) bool {
	beyond := func(c float64) bool {
		if side == models.SideSupply {
			return c > hi+depth
		}
		return c < lo-depth
	}
	broke := false
	for _, b := range window {
		if beyond(b.Close) {
			broke = true
		}
	}
	return broke && beyond(window[len(window)-1].Close)
}

func meanVolume(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

func directionalVolume(bars []models.Bar) (up, down float64) {
	for _, b := range bars {
		switch {
		case b.Close > b.Open:
			up += b.Volume
		case b.Close < b.Open:
			down += b.Volume
		}
	}
	return up, down
}

// extremeVolume is the volume on the bar printing the extreme in the
// expected direction.
func extremeVolume(window []models.Bar, side models.ZoneSide) float64 {
	best := window[0]
	for _, b := range window[1:] {
		if side == models.SideSupply && b.Low < best.Low || side != models.SideSupply && b.High > best.High {
			best = b
		}
	}
	return best.Volume
}

func spikePoints(ratio float64) float64 {
	switch {
	case ratio >= 2.5:
		return 5
	case ratio >= spikeRatio:
		return 4
	case ratio >= absorptionRatio:
		return 3
	case ratio >= 1.2:
		return 2
	case ratio >= 1.0:
		return 1
	default:
		return 0
	}
}

func displacementPoints(d float64) float64 {
	switch {
	case d >= 1.25:
		return 4
	case d >= 0.75:
		return 3
	case d >= 0.40:
		return 2
	case d >= 0.20:
		return 1
	default:
		return 0
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
