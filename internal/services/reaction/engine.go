package reaction

import (
	"math"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/features"
)

const (
	DefaultBreakDepthATR = 0.25
	DefaultATRPeriod     = 14
	ConfirmScore         = 7.0
	failureScoreCap      = 2.0
	reentryBars          = 2
)

// Input is one Engine 3 evaluation request.
type Input struct {
	Symbol    string
	Timeframe string
	Mode      Mode
	Bars      []models.Bar
	Zone      *models.Zone
	// Side overrides the zone side; empty falls back to the zone, then demand.
	Side models.ZoneSide
	// ATR is used as-is when positive, otherwise computed from Bars.
	ATR           float64
	BreakDepthATR float64
	// ExplicitZone is set when the caller supplied lo/hi; NOT_IN_ZONE only
	// applies to resolved active zones.
	ExplicitZone bool
	PrevStage    models.Stage
}

func failed(in Input, code string, ok bool) models.ReactionResult {
	r := models.ReactionResult{
		OK:             ok,
		Symbol:         in.Symbol,
		Timeframe:      in.Timeframe,
		Mode:           string(in.Mode),
		Stage:          models.StageIdle,
		StructureState: models.StructureHold,
		Zone:           in.Zone,
		ReasonCodes:    []string{code},
	}
	if !ok {
		r.Error = code
	}
	return r
}

// Evaluate scores the reaction at the zone. It never fails: problems are
// reported through reason codes on an IDLE result.
func Evaluate(in Input) models.ReactionResult {
	if in.Mode == "" {
		in.Mode = ModeSwing
	}
	if in.Symbol == "" || in.Timeframe == "" {
		return failed(in, models.ReasonMissingSymbolOrTF, false)
	}
	if len(in.Bars) == 0 {
		return failed(in, models.ReasonBarsUnavailable, false)
	}
	if in.Zone == nil || !in.Zone.Finite() {
		return failed(in, models.ReasonNoActiveZone, true)
	}
	preset := PresetFor(in.Mode)
	depthATR := in.BreakDepthATR
	if depthATR <= 0 {
		depthATR = DefaultBreakDepthATR
	}

	atr := in.ATR
	var series []float64
	if atr <= 0 {
		var ok bool
		atr, ok = features.ATR(in.Bars, DefaultATRPeriod)
		if !ok {
			return failed(in, models.ReasonATRUnavailable, false)
		}
		series = features.ATRSeries(in.Bars, DefaultATRPeriod)
	}

	bars := features.Tail(in.Bars, preset.LookbackBars)
	offset := len(in.Bars) - len(bars)
	zone := *in.Zone
	side := in.Side
	if side == "" {
		side = zone.EffectiveSide()
	}
	last := bars[len(bars)-1]
	price := last.Close
	inZone := zone.Contains(price)

	res := models.ReactionResult{
		OK:             true,
		Symbol:         in.Symbol,
		Timeframe:      in.Timeframe,
		Mode:           string(in.Mode),
		Stage:          models.StageIdle,
		StructureState: models.StructureHold,
		Zone:           in.Zone,
		Price:          price,
		ATR:            atr,
		ReasonCodes:    []string{},
	}

	if !in.ExplicitZone && !inZone {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonNotInZone)
		return res
	}

	touch := features.FindTouch(bars, zone.Lo, zone.Hi)
	if touch < 0 {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonNoTouch)
		return res
	}
	atrTouch := features.ATRAt(series, touch+offset, atr)
	depth := depthATR * atrTouch
	post := bars[touch:]

	// rejection speed
	exitBars, rejPts := rejection(post, zone, side, depth)
	res.ExitBars = exitBars
	res.RejectionSpeed = rejPts
	if rejPts >= 3 {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonFastRejection)
	}
	if exitBars > 0 && reentered(post, exitBars, zone) && rejPts > 0 {
		res.RejectionSpeed = rejPts - 1
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonReentry)
	}

	// displacement
	window := post
	if len(window) > preset.WindowBars+1 {
		window = window[:preset.WindowBars+1]
	}
	dispAbs := excursion(window, zone, side)
	res.DisplacementAtr = round(dispAbs/atrTouch, 3)
	res.DisplacementPoints = displacementPoints(dispAbs / atrTouch)
	if res.DisplacementPoints >= 3 {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonStrongDisplace)
	}

	// structure
	state := structure(post, zone, side, depth, preset.ReclaimWindowBars)
	res.StructureState = state
	switch state {
	case models.StructureHold:
		res.ReclaimOrFailure = 2
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonStructureHold)
	case models.StructureReclaim:
		res.ReclaimOrFailure = 1
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonFakeoutReclaim)
	case models.StructureFailure:
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonStructureFailure)
	}

	score := res.RejectionSpeed + res.DisplacementPoints + res.ReclaimOrFailure
	if state == models.StructureFailure && score > failureScoreCap {
		score = failureScoreCap
	}
	res.ReactionScore = clamp(round(score, 1), 0, 10)
	res.TouchQuality = touchQuality(bars[touch], zone, side)

	stageFor(&res, in, bars, zone, side, inZone, atr, preset)
	return res
}

// stageFor applies the stage rules in order: compression arming, scalp early
// arming, exit trigger, score confirmation, then the out-of-zone reset.
func stageFor(res *models.ReactionResult, in Input, bars []models.Bar, zone models.Zone, side models.ZoneSide, inZone bool, atr float64, preset Preset) {
	comp := features.Tail(bars, preset.CompBars)
	hi, lo := features.RangeHighLow(comp)
	compN := (hi - lo) / atr
	res.CompressionAtr = round(compN, 3)

	stage := models.StageIdle
	armed := false
	if inZone && compN <= preset.CompMax {
		stage = models.StageArmed
		armed = true
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonCompression)
	}
	if !armed && in.Mode == ModeScalp && inZone && zone.Kind == models.KindNegotiated {
		last := bars[len(bars)-1]
		switch {
		case features.IsWickProbe(last, zone.Lo, zone.Hi, side):
			stage, armed = models.StageArmed, true
			res.ReasonCodes = append(res.ReasonCodes, models.ReasonWickProbe)
		case features.IsControlCandle(last, atr, side):
			stage, armed = models.StageArmed, true
			res.ReasonCodes = append(res.ReasonCodes, models.ReasonControlCandle)
		}
	}
	triggered := false
	if exitedZone(res.Price, zone, side) && res.ExitBars > 0 && res.ExitBars <= preset.TriggerExitBarsMax {
		stage, triggered = models.StageTriggered, true
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonExitTrigger)
	}
	if res.ReactionScore >= ConfirmScore {
		prior := in.PrevStage == models.StageArmed || in.PrevStage == models.StageTriggered ||
			stage == models.StageArmed || stage == models.StageTriggered
		if in.Mode != ModeScalp || prior {
			stage = models.StageConfirmed
		}
	}
	if !inZone && !triggered {
		stage = models.StageIdle
		armed = false
	}
	if stage == models.StageConfirmed {
		res.ReasonCodes = append(res.ReasonCodes, models.ReasonScoreConfirmed)
	}
	res.Stage = stage
	res.Armed = armed
}

func beyondExit(close float64, z models.Zone, side models.ZoneSide, depth float64) bool {
	if side == models.SideSupply {
		return close < z.Lo-depth
	}
	return close > z.Hi+depth
}

func beyondBreak(close float64, z models.Zone, side models.ZoneSide, depth float64) bool {
	if side == models.SideSupply {
		return close > z.Hi+depth
	}
	return close < z.Lo-depth
}

func exitedZone(price float64, z models.Zone, side models.ZoneSide) bool {
	if side == models.SideSupply {
		return price < z.Lo
	}
	return price > z.Hi
}

// rejection returns the 1-based exit bar index after the touch and its points.
func rejection(post []models.Bar, z models.Zone, side models.ZoneSide, depth float64) (int, float64) {
	for j := 1; j < len(post); j++ {
		if !beyondExit(post[j].Close, z, side, depth) {
			continue
		}
		if j+1 < len(post) && z.Contains(post[j+1].Close) {
			continue
		}
		return j, rejectionPoints(j)
	}
	return 0, 0
}

func rejectionPoints(exitBars int) float64 {
	switch {
	case exitBars == 1:
		return 4
	case exitBars == 2:
		return 3
	case exitBars == 3:
		return 2
	case exitBars == 4 || exitBars == 5:
		return 1
	default:
		return 0
	}
}

func reentered(post []models.Bar, exitBars int, z models.Zone) bool {
	for k := exitBars + 1; k <= exitBars+reentryBars && k < len(post); k++ {
		if z.Contains(post[k].Close) {
			return true
		}
	}
	return false
}

func excursion(window []models.Bar, z models.Zone, side models.ZoneSide) float64 {
	hi, lo := features.RangeHighLow(window)
	var d float64
	if side == models.SideSupply {
		d = z.Lo - lo
	} else {
		d = hi - z.Hi
	}
	if d < 0 || math.IsInf(d, 0) {
		return 0
	}
	return d
}

func displacementPoints(dispATR float64) float64 {
	switch {
	case dispATR >= 1.25:
		return 4
	case dispATR >= 0.75:
		return 3
	case dispATR >= 0.40:
		return 2
	case dispATR >= 0.20:
		return 1
	default:
		return 0
	}
}

// structure classifies breaks beyond the far boundary: none is HOLD, a break
// closed back inside within reclaimBars is RECLAIM, an open break is FAILURE.
func structure(post []models.Bar, z models.Zone, side models.ZoneSide, depth float64, reclaimBars int) models.StructureState {
	broken, reclaimed := false, false
	breakIdx := 0
	for i, b := range post {
		if beyondBreak(b.Close, z, side, depth) {
			if !broken {
				broken, breakIdx = true, i
			}
			continue
		}
		if !broken {
			continue
		}
		back := b.Close >= z.Lo
		if side == models.SideSupply {
			back = b.Close <= z.Hi
		}
		if back && i-breakIdx <= reclaimBars {
			broken, reclaimed = false, true
		}
	}
	switch {
	case broken:
		return models.StructureFailure
	case reclaimed:
		return models.StructureReclaim
	default:
		return models.StructureHold
	}
}

func touchQuality(b models.Bar, z models.Zone, side models.ZoneSide) string {
	switch {
	case z.Contains(b.Close):
		return models.TouchBody
	case side == models.SideSupply && b.Close < z.Lo, side != models.SideSupply && b.Close > z.Hi:
		return models.TouchWick
	default:
		return models.TouchPierce
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
