package breaker

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/metrics"
)

var Module = fx.Module("breaker",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Config  config.Config
	Clock   clock.Clock
	Logger  *zap.Logger
	Redis   *redis.Client     `optional:"true"`
	Metrics *metrics.Pipeline `optional:"true"`
}

// NewFromConfig wires the breaker with a Redis store when available,
// falling back to memory either way.
func NewFromConfig(p Params) *Breaker {
	memory := NewMemoryStore()

	var store Store = memory
	if p.Redis != nil {
		// State older than a few cooldowns is stale; let Redis drop it.
		ttl := 4 * p.Config.BreakerCooldown
		if ttl < time.Hour {
			ttl = time.Hour
		}
		store = NewFallbackStore(NewRedisStore(p.Redis, ttl), memory, p.Logger)
	}

	b := New(store,
		p.Config.BreakerThreshold,
		p.Config.BreakerFailureWindow,
		p.Config.BreakerCooldown,
		p.Clock,
		p.Logger)
	if p.Metrics != nil {
		b.OnTransition(func(_, to State) {
			p.Metrics.IncBreakerTransition(string(to))
		})
	}
	return b
}
