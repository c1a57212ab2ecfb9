package trigger

import "TriggerDesk/internal/domain/models"

// Event is one input to the machine.
type Event interface{ eventName() string }

// ZoneEvent carries the latest Zone Reducer result. A nil zone means none.
type ZoneEvent struct{ Zone *models.Zone }

// RiskEvent carries the external risk switch.
type RiskEvent struct{ Risk models.RiskState }

// ReactionEvent carries an Engine 3 result for the active zone.
type ReactionEvent struct{ Result models.ReactionResult }

// VolumeEvent carries an Engine 4 result.
type VolumeEvent struct{ Result models.VolumeResult }

// MinuteCloseEvent is a closed 1m bar.
type MinuteCloseEvent struct{ Bar models.Bar }

// SecondCloseEvent is a closed 1s bar.
type SecondCloseEvent struct{ Bar models.Bar }

// ClockEvent advances timers without new data.
type ClockEvent struct{}

func (ZoneEvent) eventName() string        { return "zone" }
func (RiskEvent) eventName() string        { return "risk" }
func (ReactionEvent) eventName() string    { return "e3" }
func (VolumeEvent) eventName() string      { return "e4" }
func (MinuteCloseEvent) eventName() string { return "bar1m" }
func (SecondCloseEvent) eventName() string { return "bar1s" }
func (ClockEvent) eventName() string       { return "clock" }

// EffectKind enumerates machine outputs.
type EffectKind string

const (
	EffectStageChanged EffectKind = "STAGE_CHANGED"
	EffectGoRisingEdge EffectKind = "GO_RISING_EDGE"
	EffectGoCleared    EffectKind = "GO_CLEARED"
)

// Effect is one side effect requested by a transition. Go is set for the GO
// effects; From/To for stage changes.
type Effect struct {
	Kind   EffectKind
	From   models.TriggerStage
	To     models.TriggerStage
	Reason string
	Go     models.GoSignal
}
