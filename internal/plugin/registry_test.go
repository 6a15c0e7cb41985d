package plugin

import (
	"testing"

	"github.com/notipushq/notipus/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	meta       Metadata
	available  bool
	configured Config
	configErr  error
}

func (f *fakePlugin) Metadata() Metadata { return f.meta }
func (f *fakePlugin) Available() bool    { return f.available }
func (f *fakePlugin) Configure(cfg Config) error {
	f.configured = cfg
	return f.configErr
}

func newFake(name string, typ Type, priority int) *fakePlugin {
	return &fakePlugin{
		meta:      Metadata{Name: name, Type: typ, Priority: priority},
		available: true,
	}
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFake("shopify", TypeSource, 10)))

	err := r.Register(newFake("shopify", TypeSource, 20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(newFake("", TypeSource, 0)))
	require.Error(t, r.Register(newFake("   ", TypeSource, 0)))
}

func TestRegistryFreezesAfterConfigure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFake("slack", TypeDestination, 0)))
	require.NoError(t, r.Configure(config.PluginSettings{}))

	err := r.Register(newFake("teams", TypeDestination, 0))
	require.Error(t, err)

	err = r.Configure(config.PluginSettings{})
	require.Error(t, err)
}

func TestRegistryConfigureAppliesSettings(t *testing.T) {
	r := NewRegistry()
	slack := newFake("slack", TypeDestination, 10)
	teams := newFake("teams", TypeDestination, 20)
	require.NoError(t, r.Register(slack))
	require.NoError(t, r.Register(teams))

	settings := config.PluginSettings{
		"destination.teams": {Enabled: boolPtr(false)},
		"destination.slack": {
			Priority: intPtr(99),
			Config:   map[string]any{"icon": ":bell:"},
		},
	}
	require.NoError(t, r.Configure(settings))

	assert.Equal(t, ":bell:", slack.configured["icon"])
	assert.Nil(t, r.Get(TypeDestination, "teams"))

	enabled := r.Enabled(TypeDestination)
	require.Len(t, enabled, 1)
	assert.Equal(t, "slack", enabled[0].Metadata().Name)
}

func TestRegistryEnabledOrdering(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFake("charlie", TypeEnrichment, 10)))
	require.NoError(t, r.Register(newFake("alpha", TypeEnrichment, 50)))
	require.NoError(t, r.Register(newFake("bravo", TypeEnrichment, 50)))

	enabled := r.Enabled(TypeEnrichment)
	require.Len(t, enabled, 3)
	assert.Equal(t, "alpha", enabled[0].Metadata().Name)
	assert.Equal(t, "bravo", enabled[1].Metadata().Name)
	assert.Equal(t, "charlie", enabled[2].Metadata().Name)
}

func TestRegistryExcludesUnavailable(t *testing.T) {
	r := NewRegistry()
	ready := newFake("ready", TypeEnrichment, 0)
	missing := newFake("missing-key", TypeEnrichment, 100)
	missing.available = false
	require.NoError(t, r.Register(ready))
	require.NoError(t, r.Register(missing))

	enabled := r.Enabled(TypeEnrichment)
	require.Len(t, enabled, 1)
	assert.Equal(t, "ready", enabled[0].Metadata().Name)

	// Get does not filter on availability; the caller decides.
	assert.NotNil(t, r.Get(TypeEnrichment, "missing-key"))
}

func TestRegistryGetNormalizesName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFake("shopify", TypeSource, 0)))

	assert.NotNil(t, r.Get(TypeSource, "Shopify"))
	assert.NotNil(t, r.Get(TypeSource, " shopify "))
	assert.Nil(t, r.Get(TypeSource, "stripe"))
}
