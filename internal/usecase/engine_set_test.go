package usecase

import (
	"context"
	"testing"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/trigger"
)

func TestEngineSetRoutesBySymbol(t *testing.T) {
	mk := func(sym string) *LiveEngine {
		return NewLiveEngine(LiveConfig{Symbol: sym, Machine: trigger.DefaultConfig()},
			staticResolver{}, nopReactions{}, nopVolumes{}, nil)
	}
	spy, qqq := mk("SPY"), mk("QQQ")
	set := NewEngineSet(nil, spy, qqq, mk("SPY"), nil)
	if len(set.Engines()) != 2 {
		t.Fatalf("duplicates and nils should be skipped, got %d engines", len(set.Engines()))
	}
	if e, ok := set.Get("qqq"); !ok || e != qqq {
		t.Fatal("lookup should be case-insensitive")
	}
	ctx := context.Background()
	if err := set.Process(ctx, models.Tick{Symbol: "qqq", TimeMs: 1, Price: 400}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := set.Process(ctx, models.Tick{Symbol: "IWM", TimeMs: 1, Price: 200}); err != nil {
		t.Fatalf("unknown symbols are dropped, got %v", err)
	}
	if len(qqq.ticks) != 1 || len(spy.ticks) != 0 {
		t.Fatalf("routing: spy=%d qqq=%d", len(spy.ticks), len(qqq.ticks))
	}
}
