package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/notipushq/notipus/internal/event"
)

func newTestRepo(t *testing.T) (Repository, *snowflake.Node) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&Tenant{}, &Integration{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewRepository(conn), node
}

func TestFindByToken(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	active := &Tenant{ID: node.Generate(), Name: "Acme", Token: "tok_acme", Plan: PlanPro, Active: true}
	inactive := &Tenant{ID: node.Generate(), Name: "Gone", Token: "tok_gone", Plan: PlanTrial, Active: false}
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, inactive))

	found, err := repo.FindByToken(ctx, "tok_acme")
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)
	assert.Equal(t, PlanPro, found.Plan)

	// Leading whitespace from a mangled URL still resolves.
	found, err = repo.FindByToken(ctx, " tok_acme ")
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)

	_, err = repo.FindByToken(ctx, "tok_nope")
	assert.ErrorIs(t, err, event.ErrUnknownTenant)

	// Deactivated tenants are indistinguishable from unknown ones.
	_, err = repo.FindByToken(ctx, "tok_gone")
	assert.ErrorIs(t, err, event.ErrUnknownTenant)

	_, err = repo.FindByToken(ctx, "")
	assert.ErrorIs(t, err, event.ErrUnknownTenant)
}

func TestCreateMintsTokenWhenMissing(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	ten := &Tenant{ID: node.Generate(), Name: "Fresh", Plan: PlanTrial, Active: true}
	require.NoError(t, repo.Create(ctx, ten))
	require.NotEmpty(t, ten.Token)
	assert.True(t, strings.HasPrefix(ten.Token, "tok_"))

	found, err := repo.FindByToken(ctx, ten.Token)
	require.NoError(t, err)
	assert.Equal(t, ten.ID, found.ID)
}

func TestCreateDuplicateToken(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Tenant{ID: node.Generate(), Name: "A", Token: "tok_dup", Active: true}))

	err := repo.Create(ctx, &Tenant{ID: node.Generate(), Name: "B", Token: "tok_dup", Active: true})
	assert.ErrorIs(t, err, ErrTokenTaken)
}

func TestGetIntegration(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	tenantID := node.Generate()
	require.NoError(t, repo.UpsertIntegration(ctx, &Integration{
		ID:            node.Generate(),
		TenantID:      tenantID,
		Provider:      "Shopify",
		SigningSecret: "shpss_secret",
		Enabled:       true,
	}))
	require.NoError(t, repo.UpsertIntegration(ctx, &Integration{
		ID:       node.Generate(),
		TenantID: tenantID,
		Provider: "stripe",
		Enabled:  false,
	}))

	// Provider names are stored and matched lowercase.
	integ, err := repo.GetIntegration(ctx, tenantID, "shopify")
	require.NoError(t, err)
	assert.Equal(t, "shpss_secret", integ.SigningSecret)

	_, err = repo.GetIntegration(ctx, tenantID, "stripe")
	assert.ErrorIs(t, err, event.ErrUnknownProvider)

	_, err = repo.GetIntegration(ctx, tenantID, "chargify")
	assert.ErrorIs(t, err, event.ErrUnknownProvider)

	// Integrations do not leak across tenants.
	_, err = repo.GetIntegration(ctx, node.Generate(), "shopify")
	assert.ErrorIs(t, err, event.ErrUnknownProvider)
}

func TestUpsertIntegrationRotatesSecret(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	tenantID := node.Generate()
	integ := &Integration{
		ID:            node.Generate(),
		TenantID:      tenantID,
		Provider:      "chargify",
		SigningSecret: "old",
		Enabled:       true,
	}
	require.NoError(t, repo.UpsertIntegration(ctx, integ))

	integ.SigningSecret = "new"
	require.NoError(t, repo.UpsertIntegration(ctx, integ))

	got, err := repo.GetIntegration(ctx, tenantID, "chargify")
	require.NoError(t, err)
	assert.Equal(t, "new", got.SigningSecret)
}
