package staticconfig

import "sync"

// builtinScopes defines the Scope/allow-set relationship: each scope
// publishes the plugin ids it permits. network and local scopes get the
// in-repo reference probes; internet/remote/vpn/tor are deliberately
// narrower until an operator opts individual plugins in via scopes.yaml.
func builtinScopes() map[string]ScopeYAMLEntry {
	return map[string]ScopeYAMLEntry{
		"local": {
			Description: "loopback and the local segment",
			AllowedIDs:  []string{"probe.ping", "probe.portscan", "probe.netscan", "probe.camera", "probe.browse", "probe.chat"},
		},
		"network": {
			Description: "routed local networks",
			AllowedIDs:  []string{"probe.ping", "probe.portscan", "probe.netscan", "probe.camera", "probe.browse", "probe.ssh", "probe.chat"},
		},
		"internet": {
			Description: "internet-reachable hosts",
			AllowedIDs:  []string{"probe.browse", "probe.chat"},
		},
		"vpn":    {Description: "hosts reachable over an active VPN tunnel", AllowedIDs: []string{"probe.ping", "probe.browse", "probe.chat"}},
		"tor":    {Description: "hosts reachable over Tor", AllowedIDs: []string{"probe.browse", "probe.chat"}},
		"remote": {Description: "remote administration targets", AllowedIDs: []string{"probe.ssh", "probe.browse", "probe.chat"}},
	}
}

// builtinPlugins declares the in-repo reference plugins so the registry has
// a sane default even with an empty plugins.yaml.
func builtinPlugins() map[string]PluginYAMLEntry {
	enabled := true
	return map[string]PluginYAMLEntry{
		"probe.ping": {
			Enabled:      &enabled,
			Priority:     10,
			KeywordHints: []string{"ping", "reachable", "up", "down", "sprawdź"},
		},
		"probe.portscan": {
			Enabled:      &enabled,
			Priority:     10,
			KeywordHints: []string{"port", "scan", "open ports", "skanuj"},
		},
		"probe.browse": {
			Enabled:      &enabled,
			Priority:     5,
			KeywordHints: []string{"http", "https", "open", "browse", "fetch"},
		},
		"probe.ssh": {
			Enabled:      &enabled,
			Priority:     5,
			KeywordHints: []string{"ssh", "exec", "run command"},
		},
		"probe.netscan": {
			Enabled:      &enabled,
			Priority:     10,
			KeywordHints: []string{"scan network", "skanuj sieć", "discover", "arp"},
		},
		"probe.camera": {
			Enabled:      &enabled,
			Priority:     10,
			KeywordHints: []string{"camera", "kamera", "snapshot", "co widać"},
		},
		"probe.chat": {
			Enabled:      &enabled,
			Priority:     1,
			KeywordHints: []string{},
		},
	}
}

// builtinWatch carries the default watch tuning.
func builtinWatch() WatchYAMLConfig {
	autoEnabled := true
	return WatchYAMLConfig{
		MaxConcurrentWatches:   50,
		DefaultDurationMS:      60 * 60 * 1000,
		DefaultPollIntervalMS:  60 * 1000,
		DefaultChangeThreshold: 0.2,
		CleanupIntervalMS:      5 * 60 * 1000,
		AutoEnabled:            &autoEnabled,
		AutoTimeWindowMS:       60 * 60 * 1000,
		ServiceTuning: map[string]ServiceTuningEntry{
			"camera": {PollIntervalMS: 30 * 1000, ChangeThreshold: 0.10},
			"http":   {PollIntervalMS: 60 * 1000, ChangeThreshold: 0.20},
			"rtsp":   {PollIntervalMS: 15 * 1000, ChangeThreshold: 0.15},
			"mqtt":   {PollIntervalMS: 120 * 1000, ChangeThreshold: 0.30},
			"api":    {PollIntervalMS: 30 * 1000, ChangeThreshold: 0.20},
			"device": {PollIntervalMS: 60 * 1000, ChangeThreshold: 0.20},
		},
	}
}

// BuiltinConfig holds the built-in defaults for every bootstrap file,
// merged under any user-provided YAML.
type BuiltinConfig struct {
	Scopes  map[string]ScopeYAMLEntry
	Plugins map[string]PluginYAMLEntry
	Watch   WatchYAMLConfig
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration.
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(func() {
		builtinConfig = &BuiltinConfig{
			Scopes:  builtinScopes(),
			Plugins: builtinPlugins(),
			Watch:   builtinWatch(),
		}
	})
	return builtinConfig
}
