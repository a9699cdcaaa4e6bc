package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/netassist/core/pkg/change"
	"github.com/netassist/core/pkg/models"
)

// PollResult is one observation cycle's outcome: the new canonical snapshot
// plus whether the target's reachability status flipped since the prior
// poll.
type PollResult struct {
	Snapshot      models.ContentSnapshot
	StatusChanged bool
}

// Prober polls a single WatchRule's target and returns its current observed
// state. Implementations wrap the plugin referenced by the rule's
// OriginatingIntent.
type Prober interface {
	Poll(ctx context.Context, rule models.WatchRule) (PollResult, error)
}

// Registry is the subset of PluginRegistry the poller needs.
type Registry interface {
	ByIntent(intent models.Intent) []models.Plugin
}

// AddressResolver maps a rule's target id back to something a probe can
// dial: the device's IP, or the service's address derived from its parent
// device plus port/path.
type AddressResolver interface {
	GetDevice(ctx context.Context, id string) (models.Device, error)
	GetService(ctx context.Context, id string) (models.Service, error)
}

// PluginProber adapts a plugin registry into a Prober by invoking the
// highest-priority plugin registered for the rule's originating intent,
// synthesizing the same invocation path Dispatcher uses for an interactive
// turn.
type PluginProber struct {
	registry Registry
	resolver AddressResolver
	pctx     *models.PluginContext
}

// NewPluginProber constructs a PluginProber over a registry, the catalog
// used to resolve target addresses, and the process-wide plugin context
// probes execute under.
func NewPluginProber(registry Registry, resolver AddressResolver, pctx *models.PluginContext) *PluginProber {
	return &PluginProber{registry: registry, resolver: resolver, pctx: pctx}
}

// Poll re-invokes the rule's originating plugin against its target and
// derives a ContentSnapshot from the returned Result. A plugin signals a
// reachability flip via Result.Metadata.Extra["status_changed"] = true.
func (p *PluginProber) Poll(ctx context.Context, rule models.WatchRule) (PollResult, error) {
	plugins := p.registry.ByIntent(rule.OriginatingIntent)
	if len(plugins) == 0 {
		return PollResult{}, fmt.Errorf("watch: no plugin registered for intent %q", rule.OriginatingIntent)
	}
	plugin := plugins[0]
	for _, candidate := range plugins[1:] {
		if candidate.Priority() > plugin.Priority() {
			plugin = candidate
		}
	}

	address, err := p.targetAddress(ctx, rule)
	if err != nil {
		return PollResult{}, err
	}

	result, err := plugin.Execute(ctx, address, p.pctx)
	if err != nil {
		return PollResult{}, err
	}
	if result.Status == models.StatusError {
		return PollResult{}, result.Err
	}

	snap := resultToSnapshot(rule, result)
	statusChanged := false
	if result.Metadata.Extra != nil {
		if v, ok := result.Metadata.Extra["status_changed"].(bool); ok {
			statusChanged = v
		}
	}
	return PollResult{Snapshot: snap, StatusChanged: statusChanged}, nil
}

// targetAddress renders the rule's target as the probe-dialable text the
// plugin expects: a bare IP for devices, or a scheme-qualified URL for
// http-like services.
func (p *PluginProber) targetAddress(ctx context.Context, rule models.WatchRule) (string, error) {
	if rule.TargetType == models.TargetDevice {
		dev, err := p.resolver.GetDevice(ctx, rule.TargetID)
		if err != nil {
			return "", fmt.Errorf("watch: resolve device %s: %w", rule.TargetID, err)
		}
		return dev.IP, nil
	}

	svc, err := p.resolver.GetService(ctx, rule.TargetID)
	if err != nil {
		return "", fmt.Errorf("watch: resolve service %s: %w", rule.TargetID, err)
	}
	dev, err := p.resolver.GetDevice(ctx, svc.DeviceID)
	if err != nil {
		return "", fmt.Errorf("watch: resolve device %s for service %s: %w", svc.DeviceID, svc.ID, err)
	}

	switch svc.Type {
	case models.ServiceHTTP, models.ServiceAPI:
		return fmt.Sprintf("http://%s:%d%s", dev.IP, svc.Port, svc.Path), nil
	case models.ServiceHTTPS:
		return fmt.Sprintf("https://%s:%d%s", dev.IP, svc.Port, svc.Path), nil
	case models.ServiceRTSP:
		return fmt.Sprintf("rtsp://%s:%d%s", dev.IP, svc.Port, svc.Path), nil
	default:
		return dev.IP, nil
	}
}

// resultToSnapshot canonicalizes a probe Result's content blocks into a
// single ContentSnapshot ready for hashing and diffing.
func resultToSnapshot(rule models.WatchRule, result *models.Result) models.ContentSnapshot {
	var body string
	contentType := "text/html"
	for _, block := range result.Content {
		if block.Type == models.ContentImage {
			contentType = "image/jpeg"
		}
		body += block.Data
	}

	snap := models.ContentSnapshot{
		Content:     []byte(body),
		ContentType: contentType,
		Hash:        change.Hash([]byte(body)),
		CapturedAt:  time.Now(),
	}
	if rule.TargetType == models.TargetService {
		snap.ServiceID = rule.TargetID
	} else {
		snap.DeviceID = rule.TargetID
	}
	return snap
}
