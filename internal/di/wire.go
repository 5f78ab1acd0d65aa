//go:build wireinject
// +build wireinject

package di

import (
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/server"

	"github.com/google/wire"
)

var coreSet = wire.NewSet(
	// Infrastructure clients
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideCache,
	ProvideClickHouseClient,

	// Market data
	ProvideCandleSource,
	ProvideMacroSource,

	// Signal pipeline
	ProvideMacroContextBuilder,
	ProvideSignalEngine,
	ProvideSignalStore,
	ProvideSignalExporter,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,
		ProvideExportPipeline,
		ProvideSignalFeed,
		ProvideSignalService,
		ProvideTradeJournal,

		// Refresh and access
		ProvideJobRunner,
		ProvideRefreshCoordinator,
		ProvideSessionResolver,
		ProvidePermissionDirectory,
		ProvideAccessGate,
		ProvideRateLimiter,

		// Transport
		ProvideHTTPHandler,
		ProvideKafkaConsumer,
		ProvideKafkaSignalsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}

// InitializeGenerator wires the one-shot generation job.
func InitializeGenerator(cfg *config.Config) (*usecase.SignalService, func(), error) {
	wire.Build(
		coreSet,
		ProvideGeneratorService,
	)
	return &usecase.SignalService{}, nil, nil
}
