//go:build wireinject
// +build wireinject

package di

import (
	"TriggerDesk/pkg/config"
	"TriggerDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideClock,
		ProvideMetrics,
		ProvideUpstreamMetrics,
		ProvideLimiter,

		// Infrastructure clients
		ProvideRedis,
		ProvideCache,
		ProvideBytesCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories and upstream adapters
		ProvideBarArchive,
		ProvideGoArchive,
		ProvideEventPublisher,
		ProvideZoneSource,
		ProvideRiskSource,
		ProvideContextSource,
		ProvideBarProvider,
		ProvideMarketStream,
		ProvideNotifier,

		// Use cases
		ProvideBarStore,
		ProvideZonesService,
		ProvideReactionService,
		ProvideVolumeService,
		ProvideAlertEmitter,
		ProvideReplayService,
		ProvideEngines,
		ProvideTickPipeline,
		ProvideTickCollector,
		ProvideKafkaConsumer,
		ProvideKafkaTicksHandler,

		// Edge
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
