package di

import (
	"testing"
	"time"

	internalrepo "TriggerDesk/internal/repository"
	"TriggerDesk/pkg/cache"
	"TriggerDesk/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("market:\n  symbols: [SPY, QQQ]\n  polygon:\n    api_key: test\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Replay.DataDir = t.TempDir()
	return cfg
}

func TestMachineConfigFollowsEngineSection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.PersistBars = 3
	cfg.Engine.Cooldown = 5 * time.Minute
	cfg.Engine.AllowShorts = true
	mc := machineConfig(cfg)
	if mc.PersistBars != 3 || mc.Cooldown != 5*time.Minute || !mc.AllowShorts {
		t.Fatalf("unexpected machine config %+v", mc)
	}
	if mc.MinVolumeScore != 7 {
		t.Fatalf("volume threshold should keep its default, got %v", mc.MinVolumeScore)
	}
}

func TestOptionalInfrastructureFallsBack(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := ProvideCache(cfg, nil).(*cache.MemoryCache); !ok {
		t.Fatal("without redis the cache should be in memory")
	}
	if _, ok := ProvideEventPublisher(nil, cfg).(internalrepo.NopEventPublisher); !ok {
		t.Fatal("without kafka events should go to the nop publisher")
	}
	if a, err := ProvideBarArchive(nil, cfg, nil); a != nil || err != nil {
		t.Fatalf("without clickhouse there is no archive, got %v %v", a, err)
	}
	cfg.Market.TickSource = "kafka"
	if ProvideMarketStream(cfg, nil) != nil {
		t.Fatal("kafka tick source must not open the websocket")
	}
}

func TestInitializeAppWithDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Output = "stderr"
	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cleanup()
	if app == nil {
		t.Fatal("app should be built")
	}
}
