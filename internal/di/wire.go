//go:build wireinject
// +build wireinject

package di

import (
	"SignalGate/pkg/config"
	"SignalGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp builds the full application graph.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideStream,
		ProvideTracker,
		ProvideRegistry,
		ProvideFilterStore,
		ProvideWSHandler,
		ProvideAPIHandler,
		ProvideDispatcher,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil
}
