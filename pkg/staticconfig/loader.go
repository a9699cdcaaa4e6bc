// Package staticconfig loads the operator-editable bootstrap YAML files
// (scopes.yaml, plugins.yaml, watch.yaml) that seed the runtime ConfigStore
// and construct the PluginRegistry's allow-sets and the WatchManager's
// tuning defaults at startup.
//
// Loading is two-phase (Initialize/load), with ExpandEnv template
// expansion, dario.cat/mergo merging of built-in defaults with user
// overrides, and a singleton BuiltinConfig.
package staticconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/netassist/core/pkg/models"
)

// Initialize loads, merges, validates, and returns the bootstrap
// configuration rooted at configDir. This is the sole entry point callers
// should use.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("loading bootstrap configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load bootstrap configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap configuration validation failed: %w", err)
	}

	log.Info("bootstrap configuration loaded",
		"scopes", len(cfg.Scopes), "plugins", len(cfg.Plugins))
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	l := &loader{configDir: configDir}

	userScopes, err := l.loadScopesYAML()
	if err != nil {
		return nil, NewLoadError("scopes.yaml", err)
	}
	userPlugins, err := l.loadPluginsYAML()
	if err != nil {
		return nil, NewLoadError("plugins.yaml", err)
	}
	userWatch, err := l.loadWatchYAML()
	if err != nil {
		return nil, NewLoadError("watch.yaml", err)
	}

	builtin := GetBuiltinConfig()
	scopes := mergeScopes(builtin.Scopes, userScopes)
	plugins := mergePlugins(builtin.Plugins, userPlugins)
	watch, err := mergeWatch(builtin.Watch, userWatch)
	if err != nil {
		return nil, fmt.Errorf("failed to merge watch config: %w", err)
	}

	return resolve(configDir, scopes, plugins, watch)
}

// resolve converts the raw YAML-shaped maps into the validated,
// strongly-typed Config the rest of the application consumes.
func resolve(configDir string, scopes map[string]ScopeYAMLEntry, plugins map[string]PluginYAMLEntry, watch WatchYAMLConfig) (*Config, error) {
	resolvedScopes := make(map[models.Scope]ScopeDefinition, len(scopes))
	for name, entry := range scopes {
		scope := models.Scope(name)
		if !models.ValidScopes[scope] {
			return nil, NewValidationError("scope", name, "", ErrUnknownScope)
		}
		allowed := make(map[string]bool, len(entry.AllowedIDs))
		for _, id := range entry.AllowedIDs {
			allowed[id] = true
		}
		resolvedScopes[scope] = ScopeDefinition{
			Scope:       scope,
			Description: entry.Description,
			AllowedIDs:  allowed,
		}
	}

	resolvedPlugins := make(map[string]PluginDefinition, len(plugins))
	for id, entry := range plugins {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		resolvedPlugins[id] = PluginDefinition{
			ID:           id,
			Enabled:      enabled,
			Priority:     entry.Priority,
			KeywordHints: entry.KeywordHints,
		}
	}

	serviceTuning := make(map[models.ServiceType]ServiceTuning, len(watch.ServiceTuning))
	for svcType, entry := range watch.ServiceTuning {
		serviceTuning[models.ServiceType(svcType)] = ServiceTuning{
			PollIntervalMS:  entry.PollIntervalMS,
			ChangeThreshold: entry.ChangeThreshold,
		}
	}

	autoEnabled := true
	if watch.AutoEnabled != nil {
		autoEnabled = *watch.AutoEnabled
	}

	return &Config{
		configDir: configDir,
		Scopes:    resolvedScopes,
		Plugins:   resolvedPlugins,
		Watch: WatchDefaults{
			MaxConcurrentWatches:   watch.MaxConcurrentWatches,
			DefaultDurationMS:      watch.DefaultDurationMS,
			DefaultPollIntervalMS:  watch.DefaultPollIntervalMS,
			DefaultChangeThreshold: watch.DefaultChangeThreshold,
			CleanupIntervalMS:      watch.CleanupIntervalMS,
			AutoEnabled:            autoEnabled,
			AutoTimeWindowMS:       watch.AutoTimeWindowMS,
			ServiceTuning:          serviceTuning,
		},
	}, nil
}

type loader struct {
	configDir string
}

// loadYAML reads filename from configDir, expands environment variables,
// and unmarshals it into target. A missing file is not an error: every
// bootstrap file is optional and falls back entirely to built-in defaults.
func (l *loader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *loader) loadScopesYAML() (map[string]ScopeYAMLEntry, error) {
	var doc ScopesYAMLConfig
	if err := l.loadYAML("scopes.yaml", &doc); err != nil {
		return nil, err
	}
	return doc.Scopes, nil
}

func (l *loader) loadPluginsYAML() (map[string]PluginYAMLEntry, error) {
	var doc PluginsYAMLConfig
	if err := l.loadYAML("plugins.yaml", &doc); err != nil {
		return nil, err
	}
	return doc.Plugins, nil
}

func (l *loader) loadWatchYAML() (*WatchYAMLConfig, error) {
	var doc WatchYAMLConfig
	path := filepath.Join(l.configDir, "watch.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	if err := l.loadYAML("watch.yaml", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
