//go:build wireinject
// +build wireinject

package wire

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/sevigo/codesentry/internal/app"
	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/logger"
)

// InitializeApp wires config, the slog logger, and app.NewApp's full
// analysis/storage/server graph into one *app.App, returning its cleanup
// func. Run `go generate ./internal/wire` to regenerate wire_gen.go after
// changing this provider set.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(
		config.LoadConfig,
		provideLogger,
		app.NewApp,
	)
	return &app.App{}, nil, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Logging, nil)
}
