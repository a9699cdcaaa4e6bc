package staticconfig

import "dario.cat/mergo"

// mergeScopes overlays user-defined scope entries on the built-in ones: a
// user entry with the same key replaces the built-in wholesale (scopes are
// small enough that partial field merging would be surprising), matching
// an override-by-id merge.
func mergeScopes(builtin, user map[string]ScopeYAMLEntry) map[string]ScopeYAMLEntry {
	merged := make(map[string]ScopeYAMLEntry, len(builtin)+len(user))
	for k, v := range builtin {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}
	return merged
}

// mergePlugins overlays user-defined plugin entries on the built-ins,
// field by field, so a user can flip `enabled` without having to restate
// keyword_hints.
func mergePlugins(builtin, user map[string]PluginYAMLEntry) map[string]PluginYAMLEntry {
	merged := make(map[string]PluginYAMLEntry, len(builtin)+len(user))
	for k, v := range builtin {
		merged[k] = v
	}
	for k, userEntry := range user {
		base, existed := merged[k]
		if !existed {
			merged[k] = userEntry
			continue
		}
		if userEntry.Enabled != nil {
			base.Enabled = userEntry.Enabled
		}
		if userEntry.Priority != 0 {
			base.Priority = userEntry.Priority
		}
		if len(userEntry.KeywordHints) > 0 {
			base.KeywordHints = userEntry.KeywordHints
		}
		merged[k] = base
	}
	return merged
}

// mergeWatch overlays non-zero user fields onto the built-in watch
// defaults using mergo.
func mergeWatch(builtin WatchYAMLConfig, user *WatchYAMLConfig) (WatchYAMLConfig, error) {
	merged := builtin
	if user == nil {
		return merged, nil
	}
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return WatchYAMLConfig{}, err
	}
	return merged, nil
}
