package staticconfig

import (
	"errors"
	"fmt"
)

// ErrInvalidValue indicates a bootstrap field holds a structurally valid
// but out-of-range value.
var ErrInvalidValue = errors.New("invalid field value")

// validate performs cross-cutting checks that field-level parsing cannot,
// in a single post-load pass.
func validate(cfg *Config) error {
	for scope, def := range cfg.Scopes {
		for id := range def.AllowedIDs {
			if _, ok := cfg.Plugins[id]; !ok {
				return NewValidationError("scope", string(scope), "allowed_plugin_ids",
					fmt.Errorf("references unknown plugin id %q", id))
			}
		}
	}
	if cfg.Watch.MaxConcurrentWatches <= 0 {
		return NewValidationError("watch", "global", "max_concurrent_watches", ErrInvalidValue)
	}
	if cfg.Watch.DefaultChangeThreshold < 0 || cfg.Watch.DefaultChangeThreshold > 1 {
		return NewValidationError("watch", "global", "default_change_threshold", ErrInvalidValue)
	}
	return nil
}
