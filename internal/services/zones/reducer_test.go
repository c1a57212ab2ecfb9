package zones

import (
	"errors"
	"math"
	"testing"

	"TriggerDesk/internal/domain/models"
)

func zone(id string, lo, hi, strength float64, tf string) models.Zone {
	return models.Zone{ID: id, Lo: lo, Hi: hi, Strength: strength, Timeframe: tf, Kind: models.KindInstitutional}
}

func shelf(id string, kind models.ZoneKind, lo, hi, strength float64) models.Zone {
	return models.Zone{ID: id, Lo: lo, Hi: hi, Strength: strength, Timeframe: "1h", Kind: kind}
}

func assertPartition(t *testing.T, in Input, sel models.ActiveZoneSelection) {
	t.Helper()
	if got := len(sel.Render.Institutional) + len(sel.Suppressed.Institutional); got != len(in.Institutional) {
		t.Fatalf("institutional partition: %d != %d", got, len(in.Institutional))
	}
	if got := len(sel.Render.Shelves) + len(sel.Suppressed.Shelves); got != len(in.Shelves) {
		t.Fatalf("shelf partition: %d != %d", got, len(in.Shelves))
	}
}

func TestReduceRejectsBadInput(t *testing.T) {
	if _, err := Reduce(Input{CurrentPrice: 100}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("missing tf: err = %v", err)
	}
	if _, err := Reduce(Input{Timeframe: "1h", CurrentPrice: math.NaN()}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("NaN price: err = %v", err)
	}
}

func TestContainmentPicksStrongestContaining(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{
			zone("a", 99, 101, 70, "1h"),
			zone("b", 99.5, 100.5, 90, "1h"),
			zone("c", 95, 96, 100, "1h"),
			zone("d", 99, 101, 100, "15m"),
		},
		CurrentPrice: 100,
		Timeframe:    "1h",
	}
	sel, err := Reduce(in)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if sel.Active == nil || sel.Active.ID != "b" {
		t.Fatalf("active = %+v, want b", sel.Active)
	}
	if sel.Meta.Policy != "A" {
		t.Fatalf("policy = %s", sel.Meta.Policy)
	}
	assertPartition(t, in, sel)
}

func TestContainmentSupportBias(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{
			zone("above", 101, 102, 100, "1h"),
			zone("below", 97, 98, 50, "1h"),
		},
		CurrentPrice: 100,
		Timeframe:    "1h",
	}
	sel, _ := Reduce(in)
	if sel.Active == nil || sel.Active.ID != "below" {
		t.Fatalf("active = %+v, want below even though above is closer", sel.Active)
	}

	in.Institutional = in.Institutional[:1]
	sel, _ = Reduce(in)
	if sel.Active == nil || sel.Active.ID != "above" {
		t.Fatalf("active = %+v, want above", sel.Active)
	}
}

func TestContainmentShelvesOverlapOnly(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{zone("z", 98, 102, 90, "1h")},
		Shelves: []models.Zone{
			shelf("acc-near", models.KindAccumulation, 99, 99.5, 60),
			shelf("acc-far", models.KindAccumulation, 98, 98.2, 90),
			shelf("dist", models.KindDistribution, 101, 101.5, 70),
			shelf("outside", models.KindDistribution, 110, 111, 100),
		},
		CurrentPrice: 100,
		Timeframe:    "1h",
	}
	sel, _ := Reduce(in)
	if len(sel.Render.Shelves) != 2 {
		t.Fatalf("render shelves = %+v", sel.Render.Shelves)
	}
	if sel.Render.Shelves[0].ID != "acc-near" || sel.Render.Shelves[1].ID != "dist" {
		t.Fatalf("unexpected shelves %+v", sel.Render.Shelves)
	}
	assertPartition(t, in, sel)
}

func TestDailyReadsFourHourLibrary(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{zone("h4", 99, 101, 80, "4h"), zone("d", 99, 101, 100, "1d")},
		CurrentPrice:  100,
		Timeframe:     "1D",
	}
	sel, _ := Reduce(in)
	if sel.Active == nil || sel.Active.ID != "h4" {
		t.Fatalf("active = %+v, want h4", sel.Active)
	}
	if sel.Meta.TFUsed != "4h" {
		t.Fatalf("tf_used = %s", sel.Meta.TFUsed)
	}
}

func TestEmptyZoneTimeframeMatchesAll(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{zone("any", 99, 101, 80, "")},
		CurrentPrice:  100,
		Timeframe:     "15m",
	}
	sel, _ := Reduce(in)
	if sel.Active == nil || sel.Active.ID != "any" {
		t.Fatalf("active = %+v", sel.Active)
	}
}

func TestWindowPolicyKeepsStrongZonesAndGapShelves(t *testing.T) {
	in := Input{
		Institutional: []models.Zone{
			zone("low", 90, 92, 95, "1h"),
			zone("high", 108, 110, 92, "1h"),
			zone("weak", 99, 101, 60, "1h"),
			zone("far", 200, 201, 100, "1h"),
		},
		Shelves: []models.Zone{
			shelf("g1", models.KindAccumulation, 95, 96, 80),
			shelf("g2", models.KindDistribution, 100, 101, 70),
			shelf("g3", models.KindAccumulation, 103, 104, 50),
			shelf("in-low", models.KindAccumulation, 90.5, 91, 40),
			shelf("in-low-2", models.KindAccumulation, 91, 91.5, 30),
		},
		CurrentPrice: 100,
		Timeframe:    "1h",
		Policy:       PolicyWindow,
	}
	sel, err := Reduce(in)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(sel.Render.Institutional) != 2 {
		t.Fatalf("render = %+v", sel.Render.Institutional)
	}
	ids := map[string]bool{}
	for _, s := range sel.Render.Shelves {
		ids[s.ID] = true
	}
	if !ids["g1"] || !ids["g2"] || ids["g3"] || !ids["in-low"] || ids["in-low-2"] {
		t.Fatalf("unexpected shelves %v", ids)
	}
	if sel.Active == nil || sel.Active.ID != "low" {
		t.Fatalf("active = %+v, want low", sel.Active)
	}
	if sel.Meta.Policy != "B" || sel.Meta.WindowPts != DefaultWindowPts {
		t.Fatalf("meta = %+v", sel.Meta)
	}
	assertPartition(t, in, sel)
}

func TestWindowPolicyDedupesByStableKey(t *testing.T) {
	dup := models.Zone{Lo: 95, Hi: 96, Strength: 80, Timeframe: "1h", Kind: models.KindAccumulation}
	in := Input{
		Institutional: []models.Zone{zone("low", 90, 92, 95, "1h"), zone("high", 108, 110, 92, "1h")},
		Shelves:       []models.Zone{dup, dup},
		CurrentPrice:  100,
		Timeframe:     "1h",
		Policy:        PolicyWindow,
	}
	sel, _ := Reduce(in)
	if len(sel.Render.Shelves) != 1 || len(sel.Suppressed.Shelves) != 1 {
		t.Fatalf("render=%d suppressed=%d", len(sel.Render.Shelves), len(sel.Suppressed.Shelves))
	}
}

func TestStableKeyRoundsToCents(t *testing.T) {
	a := models.Zone{Lo: 100.001, Hi: 101.004, Timeframe: "1h", Kind: models.KindInstitutional}
	b := models.Zone{Lo: 100.004, Hi: 100.999, Timeframe: "60m", Kind: models.KindInstitutional}
	if StableKey(a) != StableKey(b) {
		t.Fatalf("keys differ: %s vs %s", StableKey(a), StableKey(b))
	}
	if StableKey(models.Zone{ID: "x"}) != "x" {
		t.Fatalf("explicit id must win")
	}
}

func TestUnknownFieldsOnlySurviveInSuppressed(t *testing.T) {
	a := zone("a", 99, 101, 95, "1h")
	a.Extra = map[string]any{"note": "audit"}
	b := zone("b", 120, 121, 80, "1h")
	b.Extra = map[string]any{"note": "audit"}
	sel, err := Reduce(Input{Institutional: []models.Zone{a, b}, CurrentPrice: 100, Timeframe: "1h"})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Active == nil || sel.Active.Extra != nil {
		t.Fatalf("active must be canonical: %+v", sel.Active)
	}
	for _, z := range sel.Render.Institutional {
		if z.Extra != nil {
			t.Fatalf("render zone %s kept extra fields", z.ID)
		}
	}
	if len(sel.Suppressed.Institutional) != 1 || sel.Suppressed.Institutional[0].Extra["note"] != "audit" {
		t.Fatalf("suppressed original lost its fields: %+v", sel.Suppressed.Institutional)
	}
}
