package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/pkg/log/ctxlogger"
)

// NewFromConfig creates a zap logger from Config and replaces globals.
func NewFromConfig(cfg config.Config) (*zap.Logger, error) {
	ctxlogger.SetServiceName(cfg.AppName)

	level := "info"
	if !cfg.IsProduction() {
		level = "debug"
	}
	return New(level)
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			_ = log.Sync()
			return nil
		},
	})
}

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(
		NewFromConfig,
	),
	fx.Invoke(registerHooks),
)
