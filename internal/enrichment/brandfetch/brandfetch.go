package brandfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/plugin"
	"go.uber.org/zap"
)

// Plugin looks up company branding by domain. Without an API key the plugin
// reports itself unavailable and is skipped by the registry.
type Plugin struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

var _ plugin.Enricher = (*Plugin)(nil)

func New(cfg config.Config, log *zap.Logger) *Plugin {
	return &Plugin{
		apiKey:  cfg.BrandfetchAPIKey,
		baseURL: strings.TrimRight(cfg.BrandfetchBaseURL, "/"),
		client:  &http.Client{Timeout: cfg.EnrichmentTimeout},
		log:     log.Named("enrichment.brandfetch"),
	}
}

func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "brandfetch",
		DisplayName: "Brandfetch",
		Version:     "1.0.0",
		Type:        plugin.TypeEnrichment,
		Priority:    50,
	}
}

func (p *Plugin) Available() bool {
	return p.apiKey != ""
}

func (p *Plugin) Configure(cfg plugin.Config) error {
	if key, ok := cfg["api_key"].(string); ok && strings.TrimSpace(key) != "" {
		p.apiKey = strings.TrimSpace(key)
	}
	if base, ok := cfg["base_url"].(string); ok && strings.TrimSpace(base) != "" {
		p.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
	return nil
}

type brandResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
	YearFounded int    `json:"yearFounded"`
	Logos       []struct {
		Type    string `json:"type"`
		Formats []struct {
			Src string `json:"src"`
		} `json:"formats"`
	} `json:"logos"`
}

// EnrichDomain fetches brand data for a domain. A 404 is "no data", not an
// error; the resolver caches nothing and moves on.
func (p *Plugin) EnrichDomain(ctx context.Context, domain string) (*enrichment.CompanyInfo, error) {
	url := fmt.Sprintf("%s/brands/%s", p.baseURL, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("brandfetch rate limited, retry after %s", resp.Header.Get("Retry-After"))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("brandfetch returned status %d", resp.StatusCode)
	}

	var brand brandResponse
	if err := json.NewDecoder(resp.Body).Decode(&brand); err != nil {
		return nil, err
	}

	return &enrichment.CompanyInfo{
		Name:        brand.Name,
		Domain:      domain,
		LogoURL:     primaryLogo(brand),
		Description: brand.Description,
		Industry:    brand.Industry,
		YearFounded: brand.YearFounded,
	}, nil
}

// primaryLogo prefers the icon variant, falling back to any format with a URL.
func primaryLogo(brand brandResponse) string {
	var fallback string
	for _, logo := range brand.Logos {
		for _, format := range logo.Formats {
			if format.Src == "" {
				continue
			}
			if logo.Type == "icon" {
				return format.Src
			}
			if fallback == "" {
				fallback = format.Src
			}
		}
	}
	return fallback
}
