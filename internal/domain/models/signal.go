package models

import (
	"encoding/json"
	"time"
)

// Direction of a GO. The empty direction marshals as null.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

func (d Direction) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// TriggerType names the pattern that produced a GO.
type TriggerType string

const (
	TriggerPullbackReclaim TriggerType = "PULLBACK_RECLAIM"
	TriggerBreakout        TriggerType = "BREAKOUT"
)

// GO reason codes.
const (
	ReasonPBReclaim        = "PB_RECLAIM"
	ReasonE3Armed          = "E3_ARMED"
	ReasonE4OK             = "E4_OK"
	ReasonTriggerLineBreak = "TRIGGER_LINE_BREAK"
	ReasonExecDisabled     = "EXECUTION_DISABLED"
)

// Execution blocks. They ride along on the GO but never gate it.
const (
	ReasonExecBlockedE4Trap  = "EXEC_BLOCKED_E4_TRAP"
	ReasonExecBlockedE4Score = "EXEC_BLOCKED_E4_SCORE"
)

// GoSignal is the single GO record published by the trigger engine.
type GoSignal struct {
	Signal          bool        `json:"signal"`
	Direction       Direction   `json:"direction"`
	AtUTC           string      `json:"atUtc,omitempty"`
	Price           float64     `json:"price,omitempty"`
	TriggerType     TriggerType `json:"triggerType,omitempty"`
	TriggerLine     float64     `json:"triggerLine,omitempty"`
	CooldownUntilMs int64       `json:"cooldownUntilMs,omitempty"`
	HoldUntilMs     int64       `json:"holdUntilMs,omitempty"`
	Executable      bool        `json:"executable"`
	ReasonCodes     []string    `json:"reasonCodes"`
}

// EmptyGo is the reset state of the GO record.
func EmptyGo() GoSignal {
	return GoSignal{ReasonCodes: []string{}}
}

// RiskState is the external risk switch payload.
type RiskState struct {
	KillSwitch bool     `json:"killSwitch"`
	PaperOnly  bool     `json:"paperOnly"`
	Allowlist  []string `json:"allowlist"`
}

// AlertLedger is the persisted state of the alerting edge.
type AlertLedger struct {
	LastSentAtUTC   string `json:"lastSentAtUtc,omitempty"`
	LastSentMs      int64  `json:"lastSentMs,omitempty"`
	LastGoKey       string `json:"lastGoKey,omitempty"`
	CooldownUntilMs int64  `json:"cooldownUntilMs,omitempty"`
}

// AlertResult reports the outcome of one alert attempt.
type AlertResult struct {
	OK    bool   `json:"ok"`
	Sent  bool   `json:"sent"`
	Why   string `json:"why,omitempty"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Notification is one outbound alert message.
type Notification struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Symbol    string         `json:"symbol"`
	Price     float64        `json:"price"`
	Key       string         `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}
