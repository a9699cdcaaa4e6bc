package probes

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/models"
)

// pingPorts are the TCP ports a reachability probe tries, in order. A
// connect (or an active refusal) on any of them proves the host is up
// without needing a raw ICMP socket.
var pingPorts = []int{80, 443, 22, 554}

// PingProbe answers network:ping by TCP-dialing a short list of common
// ports. It works without a privileged runtime; when one is available and
// exposes a native ping primitive, InvokeNative is preferred for true ICMP
// round-trip times.
type PingProbe struct {
	base
	Native models.InvokeNative // optional ICMP path
}

// NewPingProbe constructs the ping plugin.
func NewPingProbe(priority int) *PingProbe {
	return &PingProbe{base: base{
		id:                "probe.ping",
		intents:           []models.Intent{models.IntentNetworkPing},
		priority:          priority,
		browserCompatible: true,
	}}
}

func (p *PingProbe) CanHandle(text string, _ *models.PluginContext) bool {
	_, ok := intent.ExtractEntities(text)[models.EntityIP]
	return ok
}

func (p *PingProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	ent := intent.ExtractEntities(text)
	ip, ok := ent[models.EntityIP]
	if !ok {
		// The raw target may itself be an address when invoked by the
		// watch poller rather than through the router.
		ip = strings.TrimSpace(text)
	}

	if p.Native != nil && pctx.RuntimePrivileged {
		if raw, err := p.Native(ctx, "ping", map[string]any{"target": ip}); err == nil {
			if s, ok := raw.(string); ok {
				return textResult(p.id, s), nil
			}
		}
	}

	start := time.Now()
	reachable := false
	for _, port := range pingPorts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if tcpAlive(ctx, ip, port) {
			reachable = true
			break
		}
	}
	elapsed := time.Since(start)

	if pctx.Services.Persistence != nil && reachable {
		_, _ = pctx.Services.Persistence.UpsertDevice(ctx, &models.Device{IP: ip})
	}

	body := fmt.Sprintf("%s: Reachable (%d ms)", ip, elapsed.Milliseconds())
	status := models.StatusSuccess
	if !reachable {
		body = fmt.Sprintf("%s: Unreachable after %d ms", ip, elapsed.Milliseconds())
		status = models.StatusPartial
	}
	return &models.Result{
		PluginID: p.id,
		Status:   status,
		Content:  []models.ContentBlock{{Type: models.ContentText, Data: body}},
		Metadata: models.ResultMetadata{DurationMS: elapsed.Milliseconds()},
	}, nil
}

// tcpAlive reports whether a TCP connect to ip:port either succeeds or is
// actively refused — both prove a live host.
func tcpAlive(ctx context.Context, ip string, port int) bool {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err == nil {
		conn.Close()
		return true
	}
	return strings.Contains(err.Error(), "refused")
}
