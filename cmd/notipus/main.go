package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/activity"
	"github.com/notipushq/notipus/internal/breaker"
	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/dedup"
	"github.com/notipushq/notipus/internal/destination/slack"
	"github.com/notipushq/notipus/internal/enrichment/brandfetch"
	"github.com/notipushq/notipus/internal/logger"
	"github.com/notipushq/notipus/internal/metrics"
	"github.com/notipushq/notipus/internal/migration"
	"github.com/notipushq/notipus/internal/pipeline"
	"github.com/notipushq/notipus/internal/plugin"
	"github.com/notipushq/notipus/internal/ratelimit"
	"github.com/notipushq/notipus/internal/redisconn"
	"github.com/notipushq/notipus/internal/server"
	"github.com/notipushq/notipus/internal/source/chargify"
	"github.com/notipushq/notipus/internal/source/shopify"
	"github.com/notipushq/notipus/internal/source/stripe"
	"github.com/notipushq/notipus/internal/tenant"
	"github.com/notipushq/notipus/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		// Plugins
		fx.Provide(config.LoadPluginSettings),
		fx.Provide(NewRegistry),

		// Functional domains
		tenant.Module,
		ratelimit.Module,
		breaker.Module,
		dedup.Module,
		activity.Module,
		pipeline.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// NewRegistry assembles the plugin registry. Registration order does not
// matter; priorities and the plugins.yml overrides decide precedence.
func NewRegistry(cfg config.Config, clk clock.Clock, settings config.PluginSettings, log *zap.Logger) (*plugin.Registry, error) {
	r := plugin.NewRegistry()

	plugins := []plugin.Plugin{
		shopify.New(log),
		chargify.New(cfg.SignatureTolerance, clk, log),
		stripe.New(cfg.SignatureTolerance, clk, log),
		slack.New(cfg.DeliveryTimeout, cfg.DeliveryMaxRetries, log),
		brandfetch.New(cfg, log),
	}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}

	if err := r.Configure(settings); err != nil {
		return nil, err
	}
	return r, nil
}
