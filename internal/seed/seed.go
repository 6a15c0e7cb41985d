// Package seed bootstraps a usable tenant for local and self-hosted
// setups so a fresh install can receive webhooks without any manual
// database work.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/tenant"
)

const defaultTenantName = "Default"

// EnsureDevTenant creates the tenant for cfg.SeedTenantToken if it does
// not exist yet, along with one integration per provider that has a
// signing secret configured. Existing rows are left untouched so locally
// rotated secrets survive restarts.
func EnsureDevTenant(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	if conn == nil {
		return errors.New("seed database handle is required")
	}
	if cfg.SeedTenantToken == "" {
		return nil
	}

	ctx := context.Background()
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ten, err := ensureTenantTx(ctx, tx, node, cfg)
		if err != nil {
			return err
		}

		secrets := map[string]string{
			"shopify":  cfg.SeedShopifySecret,
			"chargify": cfg.SeedChargifySecret,
			"stripe":   cfg.SeedStripeSecret,
		}
		for provider, secret := range secrets {
			if secret == "" {
				continue
			}
			if err := ensureIntegrationTx(ctx, tx, node, ten.ID, provider, secret); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, cfg config.Config) (*tenant.Tenant, error) {
	var ten tenant.Tenant
	err := tx.WithContext(ctx).Where("token = ?", cfg.SeedTenantToken).First(&ten).Error
	if err == nil {
		return &ten, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ten = tenant.Tenant{
		ID:              node.Generate(),
		Name:            defaultTenantName,
		Token:           cfg.SeedTenantToken,
		Plan:            tenant.PlanTrial,
		Active:          true,
		SlackWebhookURL: cfg.SeedSlackWebhookURL,
	}
	if err := tx.WithContext(ctx).Create(&ten).Error; err != nil {
		return nil, err
	}
	return &ten, nil
}

func ensureIntegrationTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, provider, secret string) error {
	var integ tenant.Integration
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		First(&integ).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	integ = tenant.Integration{
		ID:            node.Generate(),
		TenantID:      tenantID,
		Provider:      provider,
		SigningSecret: secret,
		Enabled:       true,
	}
	return tx.WithContext(ctx).Create(&integ).Error
}
