// Hand-written counterpart of the injector declared in wire.go.

//go:generate go run github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"

	"github.com/sevigo/codesentry/internal/app"
	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/logger"
)

// InitializeApp is the hand-authored equivalent of what `wire` would
// generate from wire.go's provider set: load config, build the slog
// logger from it, then build the application.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	slogLogger := logger.New(cfg.Logging, nil)

	application, cleanup, err := app.NewApp(ctx, cfg, slogLogger)
	if err != nil {
		return nil, nil, err
	}
	return application, cleanup, nil
}
