//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"pumpscope/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(provideLedger, provideArchive, provideHTTPServer, provideNotifier, provideApp)
	return nil, nil, nil
}
