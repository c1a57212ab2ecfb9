package models

// Stage is the Engine 3 reaction stage.
type Stage string

const (
	StageIdle      Stage = "IDLE"
	StageArmed     Stage = "ARMED"
	StageTriggered Stage = "TRIGGERED"
	StageConfirmed Stage = "CONFIRMED"
)

// StructureState describes how price closed relative to the zone after the touch.
type StructureState string

const (
	StructureHold    StructureState = "HOLD"
	StructureReclaim StructureState = "RECLAIM"
	StructureFailure StructureState = "FAILURE"
)

// Reaction reason codes.
const (
	ReasonMissingSymbolOrTF = "MISSING_SYMBOL_OR_TF"
	ReasonBarsUnavailable   = "BARS_UNAVAILABLE"
	ReasonATRUnavailable    = "ATR_UNAVAILABLE"
	ReasonNotInZone         = "NOT_IN_ZONE"
	ReasonNoTouch           = "NO_TOUCH"
	ReasonNoActiveZone      = "NO_ACTIVE_ZONE"
	ReasonFakeoutReclaim    = "FAKEOUT_RECLAIM"
	ReasonStructureFailure  = "STRUCTURE_FAILURE"
	ReasonStructureHold     = "STRUCTURE_HOLD"
	ReasonFastRejection     = "FAST_REJECTION"
	ReasonStrongDisplace    = "STRONG_DISPLACEMENT"
	ReasonReentry           = "REENTRY_PENALTY"
	ReasonCompression       = "COMPRESSION_IN_ZONE"
	ReasonExitTrigger       = "EXIT_TRIGGER"
	ReasonScoreConfirmed    = "SCORE_CONFIRMED"
	ReasonWickProbe         = "WICK_PROBE"
	ReasonControlCandle     = "CONTROL_CANDLE"
)

// Touch quality labels.
const (
	TouchWick   = "WICK"
	TouchBody   = "BODY"
	TouchPierce = "PIERCE"
)

// ReactionResult is the Engine 3 output. Failure results are well formed with stage IDLE.
type ReactionResult struct {
	OK                 bool           `json:"ok"`
	Symbol             string         `json:"symbol,omitempty"`
	Timeframe          string         `json:"tf,omitempty"`
	Mode               string         `json:"mode,omitempty"`
	ReactionScore      float64        `json:"reactionScore"`
	Stage              Stage          `json:"stage"`
	Armed              bool           `json:"armed"`
	StructureState     StructureState `json:"structureState"`
	RejectionSpeed     float64        `json:"rejectionSpeed"`
	ExitBars           int            `json:"exitBars"`
	DisplacementAtr    float64        `json:"displacementAtr"`
	DisplacementPoints float64        `json:"displacementPoints"`
	ReclaimOrFailure   float64        `json:"reclaimOrFailure"`
	TouchQuality       string         `json:"touchQuality"`
	CompressionAtr     float64        `json:"compressionAtr"`
	Zone               *Zone          `json:"zone"`
	Price              float64        `json:"price"`
	ATR                float64        `json:"atr"`
	ReasonCodes        []string       `json:"reasonCodes"`
	Error              string         `json:"error,omitempty"`
}

// HasReason reports whether code is among the reason codes.
func (r ReactionResult) HasReason(code string) bool {
	for _, c := range r.ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}
