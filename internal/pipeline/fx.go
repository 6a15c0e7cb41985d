package pipeline

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/activity"
	"github.com/notipushq/notipus/internal/breaker"
	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/dedup"
	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/metrics"
	"github.com/notipushq/notipus/internal/plugin"
	"github.com/notipushq/notipus/internal/ratelimit"
	"github.com/notipushq/notipus/internal/tenant"
)

var Module = fx.Module("pipeline",
	fx.Provide(NewResolver),
	fx.Provide(NewFromParams),
	fx.Invoke(registerDrain),
)

type Params struct {
	fx.In

	Config   config.Config
	Tenants  tenant.Repository
	Registry *plugin.Registry
	Deduper  *dedup.Deduper
	Limiter  *ratelimit.QuotaLimiter
	Breaker  *breaker.Breaker
	Resolver *enrichment.Resolver
	Recorder *activity.Recorder
	Metrics  *metrics.Pipeline `optional:"true"`
	Logger   *zap.Logger
}

func NewFromParams(p Params) *Pipeline {
	return New(p.Config, p.Tenants, p.Registry, p.Deduper, p.Limiter, p.Breaker,
		p.Resolver, p.Recorder, p.Metrics, p.Logger)
}

type ResolverParams struct {
	fx.In

	Config   config.Config
	Registry *plugin.Registry
	Clock    clock.Clock
	Logger   *zap.Logger
	Redis    *redis.Client `optional:"true"`
}

// NewResolver assembles the enrichment resolver from whatever enrichment
// plugins ended up enabled and available.
func NewResolver(p ResolverParams) *enrichment.Resolver {
	var cache enrichment.Cache
	if p.Redis != nil {
		cache = enrichment.NewRedisCache(p.Redis, p.Config.EnrichmentCacheTTL)
	} else {
		cache = enrichment.NewLocalCache(p.Config.EnrichmentCacheTTL, p.Clock)
	}

	var lookups []enrichment.Lookup
	for _, e := range p.Registry.Enrichers() {
		lookups = append(lookups, e.EnrichDomain)
	}
	return enrichment.NewResolver(cache, lookups, p.Config.EnrichmentTimeout, p.Logger)
}

// registerDrain ties in-flight deliveries to process shutdown.
func registerDrain(lc fx.Lifecycle, p *Pipeline) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Wait(ctx)
		},
	})
}
