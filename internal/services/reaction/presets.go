package reaction

import "strings"

// Mode selects a preset of window sizes and thresholds.
type Mode string

const (
	ModeScalp Mode = "scalp"
	ModeSwing Mode = "swing"
	ModeLong  Mode = "long"
)

// Preset holds the per-mode windows.
type Preset struct {
	LookbackBars       int
	WindowBars         int
	ReclaimWindowBars  int
	CompBars           int
	CompMax            float64
	TriggerExitBarsMax int
}

var presets = map[Mode]Preset{
	ModeScalp: {LookbackBars: 80, WindowBars: 2, ReclaimWindowBars: 1, CompBars: 3, CompMax: 1.05, TriggerExitBarsMax: 2},
	ModeSwing: {LookbackBars: 40, WindowBars: 6, ReclaimWindowBars: 3, CompBars: 5, CompMax: 0.45, TriggerExitBarsMax: 3},
	ModeLong:  {LookbackBars: 25, WindowBars: 10, ReclaimWindowBars: 5, CompBars: 8, CompMax: 0.55, TriggerExitBarsMax: 4},
}

// PresetFor returns the preset of m, defaulting to swing.
func PresetFor(m Mode) Preset {
	if p, ok := presets[m]; ok {
		return p
	}
	return presets[ModeSwing]
}

// ParseMode resolves an explicit mode or a strategy id like "intraday_scalp".
func ParseMode(mode, strategyID string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeScalp:
		return ModeScalp
	case ModeSwing:
		return ModeSwing
	case ModeLong:
		return ModeLong
	}
	s := strings.ToLower(strategyID)
	switch {
	case strings.Contains(s, "scalp"):
		return ModeScalp
	case strings.Contains(s, "long"):
		return ModeLong
	default:
		return ModeSwing
	}
}
