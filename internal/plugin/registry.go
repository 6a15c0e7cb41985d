package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notipushq/notipus/internal/config"
)

type entry struct {
	plugin   Plugin
	enabled  bool
	priority int
}

// Registry is the process-wide plugin catalog. Registration and configuration
// happen during startup; after Freeze it is read-only and safe for concurrent
// use without locks.
type Registry struct {
	entries map[Type]map[string]*entry
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{
		entries: map[Type]map[string]*entry{
			TypeSource:      {},
			TypeDestination: {},
			TypeEnrichment:  {},
		},
	}
}

// Register adds a plugin under its declared metadata. Duplicate names within
// a type are a wiring bug and rejected outright.
func (r *Registry) Register(p Plugin) error {
	if r.frozen {
		return fmt.Errorf("plugin registry is frozen")
	}
	meta := p.Metadata()
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	byName, ok := r.entries[meta.Type]
	if !ok {
		return fmt.Errorf("unknown plugin type %q", meta.Type)
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("plugin %q (%s) already registered", name, meta.Type)
	}
	byName[name] = &entry{plugin: p, enabled: true, priority: meta.Priority}
	return nil
}

// Configure applies external settings (enabled flags, priority overrides,
// config maps) to every registered plugin and freezes the registry.
func (r *Registry) Configure(settings config.PluginSettings) error {
	if r.frozen {
		return fmt.Errorf("plugin registry already configured")
	}
	for pluginType, byName := range r.entries {
		for name, e := range byName {
			key := string(pluginType) + "." + name
			e.enabled = settings.IsEnabled(key)
			if priority, ok := settings.PriorityOverride(key); ok {
				e.priority = priority
			}
			if err := e.plugin.Configure(Config(settings.ConfigFor(key))); err != nil {
				return fmt.Errorf("configure plugin %s: %w", key, err)
			}
		}
	}
	r.frozen = true
	return nil
}

// Get returns an enabled plugin by type and name, or nil.
func (r *Registry) Get(pluginType Type, name string) Plugin {
	byName, ok := r.entries[pluginType]
	if !ok {
		return nil
	}
	e, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok || !e.enabled {
		return nil
	}
	return e.plugin
}

// Source returns an enabled source plugin by provider name, or nil.
func (r *Registry) Source(name string) Source {
	if p, ok := r.Get(TypeSource, name).(Source); ok {
		return p
	}
	return nil
}

// Enabled returns all enabled, available plugins of a type ordered by
// descending priority, ties broken by name for determinism.
func (r *Registry) Enabled(pluginType Type) []Plugin {
	byName, ok := r.entries[pluginType]
	if !ok {
		return nil
	}

	type ranked struct {
		name     string
		priority int
		plugin   Plugin
	}
	list := make([]ranked, 0, len(byName))
	for name, e := range byName {
		if !e.enabled || !e.plugin.Available() {
			continue
		}
		list = append(list, ranked{name: name, priority: e.priority, plugin: e.plugin})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].name < list[j].name
	})

	plugins := make([]Plugin, 0, len(list))
	for _, item := range list {
		plugins = append(plugins, item.plugin)
	}
	return plugins
}

// Destinations returns the enabled destination plugins in priority order.
func (r *Registry) Destinations() []Destination {
	enabled := r.Enabled(TypeDestination)
	out := make([]Destination, 0, len(enabled))
	for _, p := range enabled {
		if d, ok := p.(Destination); ok {
			out = append(out, d)
		}
	}
	return out
}

// Enrichers returns the enabled enrichment plugins in priority order.
func (r *Registry) Enrichers() []Enricher {
	enabled := r.Enabled(TypeEnrichment)
	out := make([]Enricher, 0, len(enabled))
	for _, p := range enabled {
		if e, ok := p.(Enricher); ok {
			out = append(out, e)
		}
	}
	return out
}
