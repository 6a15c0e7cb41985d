// Package migration creates the schema on startup so the service is
// usable out of the box for local and self-hosted environments.
package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/notipushq/notipus/internal/activity"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/seed"
	"github.com/notipushq/notipus/internal/tenant"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
		if err := conn.AutoMigrate(
			&tenant.Tenant{},
			&tenant.Integration{},
			&activity.Record{},
		); err != nil {
			return err
		}

		if cfg.IsProduction() {
			return nil
		}
		return seed.EnsureDevTenant(conn, node, cfg)
	}),
)
