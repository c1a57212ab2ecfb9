package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStageIsOneHot(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordStage("SPY", "ARMED")
	if got := testutil.ToFloat64(r.stage.WithLabelValues("SPY", "ARMED")); got != 1 {
		t.Fatalf("armed gauge = %v, want 1", got)
	}
	r.RecordStage("SPY", "COOLDOWN")
	if got := testutil.ToFloat64(r.stage.WithLabelValues("SPY", "ARMED")); got != 0 {
		t.Fatalf("armed gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.stage.WithLabelValues("SPY", "COOLDOWN")); got != 1 {
		t.Fatalf("cooldown gauge = %v, want 1", got)
	}
}

func TestRecordSnapshotResultLabel(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordSnapshot("cadence", true)
	r.RecordSnapshot("cadence", false)
	r.RecordSnapshot("cadence", false)
	if got := testutil.ToFloat64(r.snapshotsTotal.WithLabelValues("cadence", "error")); got != 2 {
		t.Fatalf("error count = %v, want 2", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
