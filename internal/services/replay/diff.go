package replay

import (
	"bytes"
	"encoding/json"

	"TriggerDesk/internal/domain/models"
)

type decisionView struct {
	Permission string `json:"permission"`
	SetupLabel string `json:"setupLabel"`
	Label      string `json:"label"`
}

func (d decisionView) setup() string {
	if d.SetupLabel != "" {
		return d.SetupLabel
	}
	return d.Label
}

type fibView struct {
	Signals struct {
		Invalidated bool `json:"invalidated"`
	} `json:"signals"`
}

type sectionError struct {
	OK      bool   `json:"ok"`
	Section string `json:"section"`
	Error   string `json:"error"`
}

// SectionError is what a snapshot stores for a context section that could
// not be fetched.
func SectionError(section string, err error) json.RawMessage {
	raw, _ := json.Marshal(sectionError{OK: false, Section: section, Error: err.Error()})
	return raw
}

// usable reports whether a stored section carries data. Empty, null and
// {"ok":false} sections take no part in diffing.
func usable(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	var head struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return false
	}
	return head.OK == nil || *head.OK
}

// decode tolerates missing or malformed sections; they read as zero values.
func decode[T any](raw json.RawMessage) T {
	var v T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

// Diff derives the cadence events between two consecutive snapshots of the
// same day. A nil prev yields no events, and a section is only compared when
// both snapshots hold it.
func Diff(prev, cur *models.ReplaySnapshot, snapshotFile string) []models.Event {
	if prev == nil || cur == nil {
		return nil
	}
	var out []models.Event
	refs := models.EventRefs{SnapshotFile: snapshotFile}
	if usable(prev.Decision) && usable(cur.Decision) {
		out = append(out, diffDecision(prev, cur, refs)...)
	}
	if usable(prev.Fib) && usable(cur.Fib) {
		pf, cf := decode[fibView](prev.Fib), decode[fibView](cur.Fib)
		if !pf.Signals.Invalidated && cf.Signals.Invalidated {
			out = append(out, models.Event{
				TsUTC: cur.TsUTC, Type: models.EventFibInvalidated, Symbol: cur.Symbol,
				From: false, To: true, ReasonCodes: []string{}, Refs: refs,
			})
		}
	}
	return out
}

func diffDecision(prev, cur *models.ReplaySnapshot, refs models.EventRefs) []models.Event {
	var out []models.Event
	pd, cd := decode[decisionView](prev.Decision), decode[decisionView](cur.Decision)
	if pd.Permission != cd.Permission {
		out = append(out, models.Event{
			TsUTC: cur.TsUTC, Type: models.EventPermissionChanged, Symbol: cur.Symbol,
			From: pd.Permission, To: cd.Permission, ReasonCodes: []string{}, Refs: refs,
		})
	}
	if pd.setup() != cd.setup() {
		out = append(out, models.Event{
			TsUTC: cur.TsUTC, Type: models.EventSetupDetected, Symbol: cur.Symbol,
			From: pd.setup(), To: cd.setup(), ReasonCodes: []string{}, Refs: refs,
		})
	}
	return out
}
