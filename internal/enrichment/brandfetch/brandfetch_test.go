package brandfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/plugin"
)

func newTestPlugin(baseURL string) *Plugin {
	return New(config.Config{
		BrandfetchAPIKey:  "bf_test_key",
		BrandfetchBaseURL: baseURL,
		EnrichmentTimeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestEnrichDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/brands/acme.com", r.URL.Path)
		assert.Equal(t, "Bearer bf_test_key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "ACME Corp",
			"description": "Makers of everything",
			"industry": "Manufacturing",
			"yearFounded": 1947,
			"logos": [
				{"type": "logo", "formats": [{"src": "https://cdn.example/logo.png"}]},
				{"type": "icon", "formats": [{"src": "https://cdn.example/icon.png"}]}
			]
		}`))
	}))
	defer srv.Close()

	info, err := newTestPlugin(srv.URL).EnrichDomain(context.Background(), "acme.com")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "ACME Corp", info.Name)
	assert.Equal(t, "acme.com", info.Domain)
	assert.Equal(t, "Manufacturing", info.Industry)
	assert.Equal(t, 1947, info.YearFounded)
	// The icon variant wins over the plain logo.
	assert.Equal(t, "https://cdn.example/icon.png", info.LogoURL)
}

func TestEnrichDomainNotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	info, err := newTestPlugin(srv.URL).EnrichDomain(context.Background(), "nobody.example")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestEnrichDomainRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestPlugin(srv.URL).EnrichDomain(context.Background(), "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAvailableRequiresAPIKey(t *testing.T) {
	p := New(config.Config{BrandfetchBaseURL: "https://api.brandfetch.io/v2"}, zap.NewNop())
	assert.False(t, p.Available())

	require.NoError(t, p.Configure(plugin.Config{"api_key": "bf_live_key"}))
	assert.True(t, p.Available())
}
