package config

import (
	"strings"

	"github.com/spf13/viper"
)

// PluginSettings carries per-plugin configuration keyed by "<type>.<name>",
// e.g. "source.shopify" or "destination.slack". It is read once at startup;
// the registry is frozen afterwards.
type PluginSettings map[string]PluginSetting

type PluginSetting struct {
	Enabled  *bool          `mapstructure:"enabled"`
	Priority *int           `mapstructure:"priority"`
	Config   map[string]any `mapstructure:"config"`
}

// IsEnabled defaults to true when the plugin is not mentioned in the file.
func (s PluginSettings) IsEnabled(key string) bool {
	setting, ok := s[normalizeKey(key)]
	if !ok || setting.Enabled == nil {
		return true
	}
	return *setting.Enabled
}

// PriorityOverride returns the configured priority, if any.
func (s PluginSettings) PriorityOverride(key string) (int, bool) {
	setting, ok := s[normalizeKey(key)]
	if !ok || setting.Priority == nil {
		return 0, false
	}
	return *setting.Priority, true
}

// ConfigFor returns the free-form config map for a plugin (never nil).
func (s PluginSettings) ConfigFor(key string) map[string]any {
	setting, ok := s[normalizeKey(key)]
	if !ok || setting.Config == nil {
		return map[string]any{}
	}
	return setting.Config
}

// LoadPluginSettings reads plugins.yml from the usual config locations.
// A missing file yields empty settings (all plugins enabled with their
// declared priorities).
func LoadPluginSettings() (PluginSettings, error) {
	v := viper.New()
	v.SetConfigName("plugins")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/notipus")
	v.AddConfigPath(".")
	v.SetEnvPrefix("NOTIPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return PluginSettings{}, nil
	}

	var raw map[string]PluginSetting
	if err := v.UnmarshalKey("plugins", &raw); err != nil {
		return nil, err
	}

	settings := make(PluginSettings, len(raw))
	for key, setting := range raw {
		settings[normalizeKey(key)] = setting
	}
	return settings, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
