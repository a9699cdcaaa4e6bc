package staticconfig

import "github.com/netassist/core/pkg/models"

// ScopesYAMLConfig is the top-level shape of scopes.yaml: one entry per
// scope name with the plugin ids it allows.
type ScopesYAMLConfig struct {
	Scopes map[string]ScopeYAMLEntry `yaml:"scopes"`
}

type ScopeYAMLEntry struct {
	Description string   `yaml:"description,omitempty"`
	AllowedIDs  []string `yaml:"allowed_plugin_ids"`
}

// PluginsYAMLConfig is the top-level shape of plugins.yaml: per-plugin
// enablement, dispatch priority, and classifier keyword hints.
type PluginsYAMLConfig struct {
	Plugins map[string]PluginYAMLEntry `yaml:"plugins"`
}

type PluginYAMLEntry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Priority     int      `yaml:"priority"`
	KeywordHints []string `yaml:"keyword_hints,omitempty"`
}

// WatchYAMLConfig is the top-level shape of watch.yaml: WatchManager and
// AutoWatchIntegrator tuning.
type WatchYAMLConfig struct {
	MaxConcurrentWatches   int                          `yaml:"max_concurrent_watches"`
	DefaultDurationMS      int                          `yaml:"default_duration_ms"`
	DefaultPollIntervalMS  int                          `yaml:"default_poll_interval_ms"`
	DefaultChangeThreshold float64                      `yaml:"default_change_threshold"`
	CleanupIntervalMS      int                          `yaml:"cleanup_interval_ms"`
	AutoEnabled            *bool                        `yaml:"auto_enabled,omitempty"`
	AutoTimeWindowMS       int                          `yaml:"auto_time_window_ms"`
	ServiceTuning          map[string]ServiceTuningEntry `yaml:"service_tuning,omitempty"`
}

type ServiceTuningEntry struct {
	PollIntervalMS  int     `yaml:"poll_interval_ms"`
	ChangeThreshold float64 `yaml:"change_threshold"`
}

// ScopeDefinition is the resolved, validated form of a ScopeYAMLEntry.
type ScopeDefinition struct {
	Scope       models.Scope
	Description string
	AllowedIDs  map[string]bool
}

// PluginDefinition is the resolved, validated form of a PluginYAMLEntry.
type PluginDefinition struct {
	ID           string
	Enabled      bool
	Priority     int
	KeywordHints []string
}

// ServiceTuning is the resolved per-service-type watch tuning.
type ServiceTuning struct {
	PollIntervalMS  int
	ChangeThreshold float64
}

// WatchDefaults is the resolved, validated form of WatchYAMLConfig.
type WatchDefaults struct {
	MaxConcurrentWatches   int
	DefaultDurationMS      int
	DefaultPollIntervalMS  int
	DefaultChangeThreshold float64
	CleanupIntervalMS      int
	AutoEnabled            bool
	AutoTimeWindowMS       int
	ServiceTuning          map[models.ServiceType]ServiceTuning
}

// Config is the fully loaded, merged, and validated bootstrap configuration
// used to seed the runtime ConfigStore and construct the PluginRegistry and
// WatchManager at startup.
type Config struct {
	configDir string
	Scopes    map[models.Scope]ScopeDefinition
	Plugins   map[string]PluginDefinition
	Watch     WatchDefaults
}

// ConfigDir returns the directory this configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// AllowSet returns the set of plugin ids permitted under scope, or nil if
// scope is not recognized.
func (c *Config) AllowSet(scope models.Scope) map[string]bool {
	def, ok := c.Scopes[scope]
	if !ok {
		return nil
	}
	return def.AllowedIDs
}

// SeedValues produces the initial ConfigStore key/value set so every key documented in the
// specification has a sane default the moment the process starts.
func (c *Config) SeedValues() map[string]any {
	seed := map[string]any{
		"scope.active":                  string(models.ScopeLocal),
		"llm.use_classifier":             false,
		"watch.default_duration_ms":      c.Watch.DefaultDurationMS,
		"watch.default_poll_interval_ms": c.Watch.DefaultPollIntervalMS,
		"watch.default_threshold":        c.Watch.DefaultChangeThreshold,
		"watch.max_concurrent":           c.Watch.MaxConcurrentWatches,
		"watch.cleanup_interval_ms":      c.Watch.CleanupIntervalMS,
		"watch.auto.enabled":             c.Watch.AutoEnabled,
		"watch.auto.time_window_ms":      c.Watch.AutoTimeWindowMS,
		"mic_enabled":                    false,
		"stt_enabled":                    false,
		"tts_enabled":                    false,
		"log.level":                      "info",
	}
	for svcType, tuning := range c.Watch.ServiceTuning {
		seed["watch.service_interval."+string(svcType)] = tuning.PollIntervalMS
		seed["watch.service_threshold."+string(svcType)] = tuning.ChangeThreshold
	}
	return seed
}
