package models

// ZonesRequest binds GET /zones/active.
type ZonesRequest struct {
	Symbol       string `query:"symbol" default:"SPY" validate:"required,symbol"`
	TF           string `query:"tf" validate:"required"`
	CurrentPrice string `query:"currentPrice"`
}

// ReactionRequest binds GET /reaction. Optional floats stay strings until parsed.
type ReactionRequest struct {
	Symbol     string `query:"symbol"`
	TF         string `query:"tf"`
	Mode       string `query:"mode" validate:"omitempty,oneof=scalp swing long"`
	StrategyID string `query:"strategyId"`
	Lo         string `query:"lo"`
	Hi         string `query:"hi"`
	ZoneID     string `query:"zoneId"`
	Side       string `query:"side" validate:"omitempty,oneof=demand supply"`
}

// VolumeRequest binds GET /volume.
type VolumeRequest struct {
	Symbol string  `query:"symbol" default:"SPY" validate:"required,symbol"`
	TF     string  `query:"tf" default:"1m"`
	ZoneLo float64 `query:"zoneLo" validate:"required"`
	ZoneHi float64 `query:"zoneHi" validate:"required,gtefield=ZoneLo"`
	Mode   string  `query:"mode" default:"swing" validate:"oneof=scalp swing long"`
}

// ReplayDateRequest binds endpoints keyed by day.
type ReplayDateRequest struct {
	Date string `query:"date" validate:"required,datetime=2006-01-02"`
}

// ReplaySnapshotRequest binds GET /replay/snapshot.
type ReplaySnapshotRequest struct {
	Date string `query:"date" validate:"required,datetime=2006-01-02"`
	Time string `query:"time" validate:"required,hhmm"`
}

// CadenceRequest binds POST /replay/cadence.
type CadenceRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"omitempty,symbol"`
}
