package models

// VolumeRegime is the Engine 4 classification.
type VolumeRegime string

const (
	RegimeNeutral             VolumeRegime = "NEUTRAL"
	RegimeInitiativeMove      VolumeRegime = "INITIATIVE_MOVE"
	RegimeAbsorption          VolumeRegime = "ABSORPTION"
	RegimeDistribution        VolumeRegime = "DISTRIBUTION"
	RegimeLiquidityTrap       VolumeRegime = "LIQUIDITY_TRAP"
	RegimePullbackContraction VolumeRegime = "PULLBACK_CONTRACTION"
	RegimeReversalExpansion   VolumeRegime = "REVERSAL_EXPANSION"
	RegimeVolumeDivergence    VolumeRegime = "VOLUME_DIVERGENCE"
)

// VolumeFlags are the individual Engine 4 detections.
type VolumeFlags struct {
	LiquidityTrap           bool `json:"liquidityTrap"`
	AbsorptionDetected      bool `json:"absorptionDetected"`
	InitiativeMoveConfirmed bool `json:"initiativeMoveConfirmed"`
	PullbackContraction     bool `json:"pullbackContraction"`
	ReversalExpansion       bool `json:"reversalExpansion"`
	DistributionDetected    bool `json:"distributionDetected"`
	VolumeDivergence        bool `json:"volumeDivergence"`
}

// VolumeDiagnostics exposes the numbers behind the flags.
type VolumeDiagnostics struct {
	BaselineVolume  float64 `json:"baselineVolume"`
	MaxVolume       float64 `json:"maxVolume"`
	SpikeRatio      float64 `json:"spikeRatio"`
	NetChangeAtr    float64 `json:"netChangeAtr"`
	DisplacementAtr float64 `json:"displacementAtr"`
	TouchIndex      int     `json:"touchIndex"`
	WindowBars      int     `json:"windowBars"`
}

// VolumeResult is the Engine 4 output. Zone echoes the requested bounds.
type VolumeResult struct {
	OK              bool               `json:"ok"`
	Symbol          string             `json:"symbol,omitempty"`
	Timeframe       string             `json:"tf,omitempty"`
	Mode            string             `json:"mode,omitempty"`
	VolumeScore     float64            `json:"volumeScore"`
	VolumeConfirmed bool               `json:"volumeConfirmed"`
	Regime          VolumeRegime       `json:"regime"`
	Flags           VolumeFlags        `json:"flags"`
	Zone            ZoneBounds         `json:"zone"`
	Diagnostics     *VolumeDiagnostics `json:"diagnostics,omitempty"`
	ReasonCodes     []string           `json:"reasonCodes"`
	Error           string             `json:"error,omitempty"`
}
