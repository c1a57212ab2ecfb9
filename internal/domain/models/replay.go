package models

import "encoding/json"

const SnapshotSchema = "replay-snapshot/v1"

// Snapshot kinds.
const (
	SnapshotCadence = "cadence"
	SnapshotGo      = "go"
)

// SnapshotMeta locates a snapshot in the replay tree.
type SnapshotMeta struct {
	Schema   string `json:"schema"`
	DateYmd  string `json:"dateYmd"`
	TimeHHMM string `json:"timeHHMM"`
	DataDir  string `json:"dataDir"`
	Kind     string `json:"kind,omitempty"`
	File     string `json:"file,omitempty"`
	GoKey    string `json:"goKey,omitempty"`
}

// MarketBlock is the optional market section of a snapshot.
type MarketBlock struct {
	OK    bool    `json:"ok"`
	Price float64 `json:"price,omitempty"`
	Error string  `json:"error,omitempty"`
}

// StructureBlock carries the raw zone hierarchy payload.
type StructureBlock struct {
	SmzHierarchy json.RawMessage `json:"smzHierarchy"`
}

// ReplaySnapshot is the immutable per-minute (or per-GO) capture.
// Upstream sections are kept as raw JSON.
type ReplaySnapshot struct {
	OK        bool            `json:"ok"`
	TsUTC     string          `json:"tsUtc"`
	Symbol    string          `json:"symbol"`
	Market    *MarketBlock    `json:"market,omitempty"`
	Structure StructureBlock  `json:"structure"`
	Fib       json.RawMessage `json:"fib"`
	Decision  json.RawMessage `json:"decision"`
	Decisions json.RawMessage `json:"decisions,omitempty"`
	Engine15  json.RawMessage `json:"engine15,omitempty"`
	Go        *GoPayload      `json:"go,omitempty"`
	Meta      SnapshotMeta    `json:"meta"`
}

// EventType enumerates replay events.
type EventType string

const (
	EventPermissionChanged EventType = "PERMISSION_CHANGED"
	EventSetupDetected     EventType = "SETUP_DETECTED"
	EventFibInvalidated    EventType = "FIB_INVALIDATED"
	EventGoSignal          EventType = "GO_SIGNAL"
)

// EventRefs points an event back at its artifacts.
type EventRefs struct {
	ZoneID       string `json:"zoneId,omitempty"`
	SnapshotFile string `json:"snapshotFile,omitempty"`
	GoKey        string `json:"goKey,omitempty"`
}

// EngineScores summarizes Engine 3/4 readings attached to a GO.
type EngineScores struct {
	E3Score     *float64 `json:"e3Score,omitempty"`
	E3Stage     string   `json:"e3Stage,omitempty"`
	E4Score     *float64 `json:"e4Score,omitempty"`
	E4Regime    string   `json:"e4Regime,omitempty"`
	E4Confirmed *bool    `json:"e4Confirmed,omitempty"`
}

// Event is one entry of the per-day events log.
type Event struct {
	ID           string        `json:"id,omitempty"`
	TsUTC        string        `json:"tsUtc"`
	Type         EventType     `json:"type"`
	Symbol       string        `json:"symbol,omitempty"`
	From         any           `json:"from,omitempty"`
	To           any           `json:"to,omitempty"`
	ReasonCodes  []string      `json:"reasonCodes"`
	Refs         EventRefs     `json:"refs"`
	EngineScores *EngineScores `json:"engineScores,omitempty"`
}

// EventLog is the on-disk shape of events.json.
type EventLog struct {
	Events []Event `json:"events"`
}

// GoLedgerEntry is the per-strategy dedupe record.
type GoLedgerEntry struct {
	LastGoKey    string `json:"lastGoKey"`
	LastSentMs   int64  `json:"lastSentMs"`
	LastGoAtUTC  string `json:"lastGoAtUtc"`
	SnapshotFile string `json:"snapshotFile"`
}

// GoLedger is the on-disk shape of go-ledger.json.
type GoLedger struct {
	Strategies map[string]GoLedgerEntry `json:"strategies"`
}

// GoPayload is the body accepted by the GO recorder.
type GoPayload struct {
	Symbol       string        `json:"symbol" validate:"required"`
	StrategyID   string        `json:"strategyId" default:"intraday_5b"`
	Direction    string        `json:"direction" validate:"required,oneof=LONG SHORT"`
	AtUTC        string        `json:"atUtc" validate:"required"`
	Price        float64       `json:"price"`
	TriggerType  string        `json:"triggerType,omitempty"`
	TriggerLine  float64       `json:"triggerLine,omitempty"`
	ReasonCodes  []string      `json:"reasonCodes,omitempty"`
	EngineScores *EngineScores `json:"engineScores,omitempty"`
	ZoneID       string        `json:"zoneId,omitempty"`
}

// Key is the dedupe key symbol|strategyId|direction|atUtc.
func (p GoPayload) Key() string {
	return p.Symbol + "|" + p.StrategyID + "|" + p.Direction + "|" + p.AtUTC
}

// RecordGoResult is returned by the GO recorder.
type RecordGoResult struct {
	OK           bool   `json:"ok"`
	Skipped      bool   `json:"skipped,omitempty"`
	Reason       string `json:"reason,omitempty"`
	SnapshotFile string `json:"snapshotFile,omitempty"`
	EventsFile   string `json:"eventsFile,omitempty"`
	GoKey        string `json:"goKey,omitempty"`
	Error        string `json:"error,omitempty"`
}

// CadenceResult is returned by a cadence run.
type CadenceResult struct {
	OK           bool     `json:"ok"`
	Skipped      bool     `json:"skipped,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	SnapshotFile string   `json:"snapshotFile,omitempty"`
	Events       []string `json:"events,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Replay skip reasons.
const (
	SkipDuplicateGoKey = "DUPLICATE_GO_KEY"
	SkipRateLimited    = "RATE_LIMITED"
	SkipSnapshotExists = "SNAPSHOT_EXISTS"
	SkipMinuteClaimed  = "MINUTE_CLAIMED"
)
