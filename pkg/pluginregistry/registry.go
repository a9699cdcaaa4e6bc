// Package pluginregistry holds every registered Plugin instance, keyed by
// id, with an intent-to-plugins multimap derived from each plugin's
// declared SupportedIntents.
package pluginregistry

import (
	"log/slog"
	"sync"

	"github.com/netassist/core/pkg/models"
)

// entry pairs a registered plugin with registry-local bookkeeping not part
// of the Plugin contract itself.
type entry struct {
	plugin   models.Plugin
	disabled bool // set when Initialize failed; plugin stays registered but unusable
	order    int  // registration sequence, used for stable tie-breaking and reverse dispose
}

// Registry is the PluginRegistry. Registration is rare and the
// read path (ByIntent/All, called on every dispatch) is hot, so reads
// take a shared lock and writes take an exclusive one.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*entry
	byIntent map[models.Intent][]string // plugin ids, in registration order
	nextOrd  int
}

// New creates an empty PluginRegistry.
func New() *Registry {
	return &Registry{
		byID:     make(map[string]*entry),
		byIntent: make(map[models.Intent][]string),
	}
}

// Register installs plugin, invoking Initialize with pctx. Re-registering an
// id already present replaces it in place; the
// prior instance is disposed first so it never leaks a live resource.
// Initialize failure is logged and the plugin is marked disabled rather than
// dropped, so operators can see it in All() and fix configuration without a
// restart.
func (r *Registry) Register(pctx *models.PluginContext, plugin models.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := plugin.ID()
	if prior, ok := r.byID[id]; ok {
		if err := prior.plugin.Dispose(); err != nil {
			slog.Warn("plugin dispose failed during re-registration", "plugin_id", id, "error", err)
		}
		r.removeFromIntentIndexLocked(id)
	}

	e := &entry{plugin: plugin, order: r.nextOrd}
	r.nextOrd++

	if err := plugin.Initialize(pctx); err != nil {
		slog.Error("plugin initialization failed; registering disabled", "plugin_id", id, "error", err)
		e.disabled = true
	}

	r.byID[id] = e
	for _, intent := range plugin.SupportedIntents() {
		r.byIntent[intent] = append(r.byIntent[intent], id)
	}
	return nil
}

// Unregister disposes and removes a plugin by id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	r.removeFromIntentIndexLocked(id)
	return e.plugin.Dispose()
}

func (r *Registry) removeFromIntentIndexLocked(id string) {
	for intent, ids := range r.byIntent {
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		if len(kept) == 0 {
			delete(r.byIntent, intent)
		} else {
			r.byIntent[intent] = kept
		}
	}
}

// ByIntent returns every enabled plugin declaring support for intent, in
// registration order. Disabled plugins (failed Initialize) are excluded.
func (r *Registry) ByIntent(intent models.Intent) []models.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byIntent[intent]
	out := make([]models.Plugin, 0, len(ids))
	for _, id := range ids {
		e := r.byID[id]
		if e == nil || e.disabled {
			continue
		}
		out = append(out, e.plugin)
	}
	return out
}

// All returns every registered plugin, enabled or not, in registration order.
func (r *Registry) All() []models.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	sortByOrder(entries)

	out := make([]models.Plugin, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.plugin)
	}
	return out
}

// Count returns the number of registered plugins (enabled or disabled),
// surfaced on the health endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Shutdown disposes every plugin in reverse registration order.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	sortByOrder(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].plugin.Dispose(); err != nil {
			slog.Warn("plugin dispose failed during shutdown", "plugin_id", entries[i].plugin.ID(), "error", err)
		}
	}
}

func sortByOrder(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].order < entries[j-1].order; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
