package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("tenant",
	fx.Provide(NewRepository),
)

type Repository interface {
	FindByToken(ctx context.Context, token string) (*Tenant, error)
	GetIntegration(ctx context.Context, tenantID snowflake.ID, provider string) (*Integration, error)
	Create(ctx context.Context, t *Tenant) error
	UpsertIntegration(ctx context.Context, i *Integration) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByToken resolves the webhook URL token to an active tenant.
// Inactive tenants look identical to unknown ones from the outside.
func (r *repository) FindByToken(ctx context.Context, token string) (*Tenant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, event.ErrUnknownTenant
	}

	var t Tenant
	err := r.db.WithContext(ctx).
		Where("token = ? AND active = ?", token, true).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, event.ErrUnknownTenant
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetIntegration returns the tenant's enabled integration for a provider.
func (r *repository) GetIntegration(ctx context.Context, tenantID snowflake.ID, provider string) (*Integration, error) {
	var i Integration
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND enabled = ?", tenantID, strings.ToLower(provider), true).
		First(&i).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, event.ErrUnknownProvider
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ErrTokenTaken is returned when a new tenant's webhook token collides
// with an existing one.
var ErrTokenTaken = errors.New("tenant token already in use")

func (r *repository) Create(ctx context.Context, t *Tenant) error {
	if t.Token == "" {
		t.Token = NewToken()
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ErrTokenTaken
		}
		return err
	}
	return nil
}

func (r *repository) UpsertIntegration(ctx context.Context, i *Integration) error {
	i.Provider = strings.ToLower(i.Provider)
	return r.db.WithContext(ctx).Save(i).Error
}
