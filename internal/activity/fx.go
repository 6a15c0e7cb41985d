package activity

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/config"
)

var Module = fx.Module("activity",
	fx.Provide(NewRecorder),
	fx.Invoke(registerPurgeWorker),
)

const purgeInterval = time.Hour

// registerPurgeWorker runs retention cleanup on a ticker for the lifetime
// of the process.
func registerPurgeWorker(lc fx.Lifecycle, rec *Recorder, cfg config.Config, log *zap.Logger) {
	log = log.Named("activity.purge")
	done := make(chan struct{})
	stopped := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(stopped)
				ticker := time.NewTicker(purgeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
						purged, err := rec.Purge(ctx, cfg.ActivityRetention)
						cancel()
						if err != nil {
							log.Warn("activity purge failed", zap.Error(err))
							continue
						}
						if purged > 0 {
							log.Info("purged old activity records", zap.Int64("count", purged))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			select {
			case <-stopped:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
