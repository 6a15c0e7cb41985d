package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Logger *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

// NewFromConfig wires the limiter: Redis-backed when an address is
// configured, with the local counter always present as fallback.
func NewFromConfig(p Params) *QuotaLimiter {
	local := NewLocalCounter(p.Clock)

	var store CounterStore
	if p.Redis != nil {
		store = NewRedisCounter(p.Redis)
	}
	return NewQuotaLimiter(store, local, p.Config.QuotaWindow, p.Clock, p.Logger)
}
