package plugin

import (
	"context"
	"net/http"

	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/event"
)

type Type string

const (
	TypeSource      Type = "source"
	TypeDestination Type = "destination"
	TypeEnrichment  Type = "enrichment"
)

// Config is the free-form per-plugin configuration injected at startup.
type Config map[string]any

// Metadata describes a plugin to the registry.
type Metadata struct {
	Name        string
	DisplayName string
	Version     string
	Type        Type
	Priority    int
}

// Plugin is the contract shared by all plugin categories.
type Plugin interface {
	Metadata() Metadata

	// Available reports whether the plugin can be activated, e.g. an
	// enrichment plugin without an API key is unavailable. Unavailable
	// plugins are silently excluded from Enabled listings.
	Available() bool

	// Configure is called once at startup, before first use.
	Configure(cfg Config) error
}

// VerifyRequest carries everything a source plugin needs to authenticate
// an inbound webhook.
type VerifyRequest struct {
	Payload []byte
	Headers http.Header
	Secret  string
}

// Source validates and parses provider webhooks into canonical events.
type Source interface {
	Plugin
	Verify(ctx context.Context, req VerifyRequest) error
	Parse(ctx context.Context, payload []byte, headers http.Header) (*event.NormalizedEvent, error)
}

// Credentials are the tenant-scoped secrets a destination delivers with.
type Credentials struct {
	WebhookURL string
	Channel    string
}

// Destination formats and delivers canonical events to a notification channel.
// Format is pure and must not fail on missing enrichment.
type Destination interface {
	Plugin
	Format(evt *event.NormalizedEvent, company *enrichment.CompanyInfo) ([]byte, error)
	Send(ctx context.Context, payload []byte, creds Credentials) error
}

// Enricher augments events with external company context.
type Enricher interface {
	Plugin
	EnrichDomain(ctx context.Context, domain string) (*enrichment.CompanyInfo, error)
}
