// Package dispatch selects an eligible plugin for a routed classification
// under the active scope, enforces capability filtering, invokes Execute
// under a budget, and records scan_started/scan_completed events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/netassist/core/pkg/models"
)

// defaultBudget is the execution budget applied when no per-intent override
// is configured.
const defaultBudget = 30 * time.Second

// dedupeTTL bounds how long a completed result is replayed to a duplicate
// caller after the original execution finishes.
const dedupeTTL = 2 * time.Second

// Registry is the subset of PluginRegistry the dispatcher needs.
type Registry interface {
	ByIntent(intent models.Intent) []models.Plugin
}

// ScopeSource supplies the allow-set of plugin ids permitted under a scope
//. *staticconfig.Config satisfies this directly.
type ScopeSource interface {
	AllowSet(scope models.Scope) map[string]bool
}

// Events is the subset of EventLog the dispatcher needs.
type Events interface {
	Append(eventType string, payload map[string]any) (uint64, error)
}

// ConfigReader is the subset of ConfigStore the dispatcher needs for
// per-intent budget overrides.
type ConfigReader interface {
	GetInt(key string, fallback int) int
}

// ErrScopeRejected is returned when every plugin capable of an intent is
// excluded by the active scope's allow-set.
var ErrScopeRejected = errors.New("current scope excludes every plugin capable of this intent")

// Dispatcher resolves and runs one plugin execution per classification.
type Dispatcher struct {
	registry Registry
	scopes   ScopeSource
	events   Events
	config   ConfigReader

	mu       sync.Mutex
	inFlight map[string]*execution
}

// execution tracks one in-flight (or just-completed, within dedupeTTL)
// dispatch keyed by plugin id + primary entity.
type execution struct {
	done     chan struct{}
	result   *models.Result
	err      error
	expireAt time.Time
}

// New constructs a Dispatcher.
func New(registry Registry, scopes ScopeSource, events Events, config ConfigReader) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		scopes:   scopes,
		events:   events,
		config:   config,
		inFlight: make(map[string]*execution),
	}
}

// Dispatch selects a plugin, enforces scope and capability filtering,
// invokes Execute under a budget, and records scan_started/scan_completed.
func (d *Dispatcher) Dispatch(ctx context.Context, classification models.Classification, scope models.Scope, pctx *models.PluginContext) (*models.Result, error) {
	plugin, err := d.selectPlugin(classification, scope, pctx)
	if err != nil {
		return nil, err
	}

	if plugin.BrowserCompatible() == false && !pctx.RuntimePrivileged {
		return nil, models.NewExecutionError(models.ClassRuntimeRequired,
			fmt.Sprintf("plugin %q requires a privileged runtime", plugin.ID()), nil)
	}

	key := dedupeKey(plugin.ID(), classification.Entities)
	if result, joined, joinedErr := d.joinOrClaim(key); joined {
		return result, joinedErr
	}

	result, err := d.execute(ctx, plugin, classification, pctx)
	d.settle(key, result, err)
	return result, err
}

// selectPlugin narrows the registered candidates by scope, capability,
// and priority.
func (d *Dispatcher) selectPlugin(classification models.Classification, scope models.Scope, pctx *models.PluginContext) (models.Plugin, error) {
	candidates := d.registry.ByIntent(classification.Intent)
	if len(candidates) == 0 {
		return nil, models.NewExecutionError(models.ClassRuntimeRequired,
			fmt.Sprintf("no plugin registered for intent %q", classification.Intent), models.ErrNotFound)
	}

	allow := d.scopes.AllowSet(scope)
	scoped := make([]models.Plugin, 0, len(candidates))
	for _, p := range candidates {
		if allow == nil || allow[p.ID()] {
			scoped = append(scoped, p)
		}
	}
	if len(scoped) == 0 {
		return nil, fmt.Errorf("%w: scope %q, intent %q", ErrScopeRejected, scope, classification.Intent)
	}

	if len(scoped) > 1 {
		handling := make([]models.Plugin, 0, len(scoped))
		for _, p := range scoped {
			if p.CanHandle(classification.RawText, pctx) {
				handling = append(handling, p)
			}
		}
		if len(handling) > 0 {
			scoped = handling
		}
	}

	sort.SliceStable(scoped, func(i, j int) bool {
		return scoped[i].Priority() > scoped[j].Priority()
	})
	return scoped[0], nil
}

// joinOrClaim checks for an in-flight or recently-completed execution under
// key. If one exists, this caller joins it: the original execution's result
// is awaited and returned with metadata.cached stamped. If none exists, a
// placeholder is registered so concurrent callers with the same key join
// this caller's execution instead of running their own.
func (d *Dispatcher) joinOrClaim(key string) (result *models.Result, joined bool, err error) {
	d.mu.Lock()
	if e, ok := d.inFlight[key]; ok {
		if time.Now().Before(e.expireAt) || e.expireAt.IsZero() {
			d.mu.Unlock()
			<-e.done
			if e.result != nil {
				clone := *e.result
				clone.Metadata.Cached = true
				return &clone, true, e.err
			}
			return nil, true, e.err
		}
		delete(d.inFlight, key)
	}
	d.inFlight[key] = &execution{done: make(chan struct{})}
	d.mu.Unlock()
	return nil, false, nil
}

func (d *Dispatcher) settle(key string, result *models.Result, err error) {
	d.mu.Lock()
	e := d.inFlight[key]
	d.mu.Unlock()
	if e == nil {
		return
	}
	e.result = result
	e.err = err
	e.expireAt = time.Now().Add(dedupeTTL)
	close(e.done)

	time.AfterFunc(dedupeTTL, func() {
		d.mu.Lock()
		if d.inFlight[key] == e {
			delete(d.inFlight, key)
		}
		d.mu.Unlock()
	})
}

// execute invokes Execute under the resolved budget and records
// scan_started/scan_completed.
func (d *Dispatcher) execute(ctx context.Context, plugin models.Plugin, classification models.Classification, pctx *models.PluginContext) (*models.Result, error) {
	budget := d.budgetFor(classification.Intent)
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	d.events.Append("scan_started", map[string]any{
		"plugin_id": plugin.ID(), "intent": string(classification.Intent),
	})
	start := time.Now()

	result, err := plugin.Execute(execCtx, classification.RawText, pctx)
	duration := time.Since(start)

	status := string(models.StatusError)
	if err == nil && result != nil {
		status = string(result.Status)
	}
	d.events.Append("scan_completed", map[string]any{
		"plugin_id": plugin.ID(), "intent": string(classification.Intent),
		"duration_ms": duration.Milliseconds(), "status": status,
	})

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("dispatch: execution timed out", "plugin_id", plugin.ID(), "budget", budget)
			return result, models.NewExecutionError(models.ClassTimeout,
				fmt.Sprintf("%s exceeded its %s budget", plugin.ID(), budget), err)
		}
		return result, err
	}
	if result != nil {
		result.Metadata.DurationMS = duration.Milliseconds()
	}
	return result, nil
}

// budgetFor resolves the per-intent execution budget override, falling back
// to defaultBudget.
func (d *Dispatcher) budgetFor(intent models.Intent) time.Duration {
	if d.config == nil {
		return defaultBudget
	}
	ms := d.config.GetInt("dispatch.budget_ms."+string(intent), int(defaultBudget/time.Millisecond))
	if ms <= 0 {
		return defaultBudget
	}
	return time.Duration(ms) * time.Millisecond
}

// dedupeKey builds the "plugin_id + primary entity" key. The
// primary entity is the first populated key among ip/url/mac/text, in that
// priority order, since those are the values most likely to identify the
// target of a probe.
func dedupeKey(pluginID string, entities models.Entities) string {
	for _, k := range []models.EntityKey{models.EntityIP, models.EntityURL, models.EntityMAC, models.EntityText} {
		if v, ok := entities[k]; ok && v != "" {
			return pluginID + "|" + string(k) + "=" + v
		}
	}
	return pluginID + "|none"
}
