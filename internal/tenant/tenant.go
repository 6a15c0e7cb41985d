// Package tenant contains persistence models for webhook tenants and their
// provider integrations.
package tenant

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// NewToken mints the opaque webhook URL token for a new tenant. The token
// is the only secret in the URL, so it must be unguessable.
func NewToken() string {
	return "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Plan names. Every tenant is on exactly one plan; the plan fixes the
// monthly notification quota.
const (
	PlanTrial      = "trial"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

var planQuotas = map[string]int64{
	PlanTrial:      1_000,
	PlanBasic:      10_000,
	PlanPro:        100_000,
	PlanEnterprise: 1_000_000,
}

// QuotaFor returns the monthly notification quota for a plan. Unknown plans
// get the trial quota rather than unlimited throughput.
func QuotaFor(plan string) int64 {
	if quota, ok := planQuotas[plan]; ok {
		return quota
	}
	return planQuotas[PlanTrial]
}

// Tenant represents a paying customer of the notification service. Token is
// the opaque identifier embedded in webhook URLs; it is the only tenant
// lookup key the ingestion path uses.
type Tenant struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	Token           string       `gorm:"type:text;not null;uniqueIndex:ux_tenants_token" json:"token"`
	Plan            string       `gorm:"type:text;not null;default:'trial'" json:"plan"`
	Active          bool         `gorm:"not null;default:true" json:"active"`
	SlackWebhookURL string       `gorm:"type:text;column:slack_webhook_url" json:"slack_webhook_url"`
	SlackChannel    string       `gorm:"type:text;column:slack_channel" json:"slack_channel"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Quota returns the tenant's monthly notification quota.
func (t Tenant) Quota() int64 { return QuotaFor(t.Plan) }

// Integration holds per-provider webhook credentials for a tenant. A tenant
// without an integration row for a provider cannot receive that provider's
// webhooks.
type Integration struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_integrations_tenant_provider,priority:1" json:"tenant_id"`
	Provider      string       `gorm:"type:text;not null;uniqueIndex:ux_integrations_tenant_provider,priority:2" json:"provider"`
	SigningSecret string       `gorm:"type:text;column:signing_secret" json:"-"`
	Enabled       bool         `gorm:"not null;default:true" json:"enabled"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Integration) TableName() string { return "integrations" }
