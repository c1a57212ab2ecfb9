package models

import "encoding/json"

// TriggerStage is the Engine 5B stage.
type TriggerStage string

const (
	TriggerIdle      TriggerStage = "IDLE"
	TriggerArmed     TriggerStage = "ARMED"
	TriggerTriggered TriggerStage = "TRIGGERED"
	TriggerCooldown  TriggerStage = "COOLDOWN"
)

// PullbackState tracks the impulse/pullback sequence. Empty marshals as null.
type PullbackState string

const (
	PBNone         PullbackState = ""
	PBImpulseSeen  PullbackState = "IMPULSE_SEEN"
	PBPullbackSeen PullbackState = "PULLBACK_SEEN"
)

func (p PullbackState) MarshalJSON() ([]byte, error) {
	if p == PBNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// TriggerState is the full state record of the trigger machine.
type TriggerState struct {
	Stage             TriggerStage  `json:"stage"`
	PBState           PullbackState `json:"pbState"`
	Direction         Direction     `json:"direction"`
	Impulse1mTime     int64         `json:"impulse1mTime"`
	Impulse1mHigh     float64       `json:"impulse1mHigh"`
	Impulse1mLow      float64       `json:"impulse1mLow"`
	Pullback1mTime    int64         `json:"pullback1mTime"`
	PullbackHigh      float64       `json:"pullbackHigh"`
	PullbackLow       float64       `json:"pullbackLow"`
	TriggerLine       float64       `json:"triggerLine"`
	TriggerAboveCount int           `json:"triggerAboveCount"`
	ArmedAtMs         int64         `json:"armedAtMs"`
	TriggeredAtMs     int64         `json:"triggeredAtMs"`
	CooldownUntilMs   int64         `json:"cooldownUntilMs"`
	Go                GoSignal      `json:"go"`
}

// LiveStatus is the published view of the live engine.
type LiveStatus struct {
	OK         bool              `json:"ok"`
	Symbol     string            `json:"symbol"`
	StrategyID string            `json:"strategyId"`
	NowUTC     string            `json:"nowUtc"`
	State      TriggerState      `json:"state"`
	Zone       *Zone             `json:"zone"`
	E3         *ReactionResult   `json:"e3"`
	E4         *VolumeResult     `json:"e4"`
	Risk       *RiskState        `json:"risk"`
	Last1s     *Bar              `json:"last1s"`
	Last1m     *Bar              `json:"last1m"`
	Forming1m  *Bar              `json:"forming1m"`
	RollupTF   Timeframe         `json:"rollupTf"`
	LastRollup *Bar              `json:"lastRollup"`
	Forming    *Bar              `json:"formingRollup"`
	LastTickMs int64             `json:"lastTickMs"`
	Connected  bool              `json:"connected"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// LiveEvent is one SSE frame.
type LiveEvent struct {
	Type  string     `json:"type"`
	State LiveStatus `json:"state"`
}
