package probes

import (
	"context"
	"fmt"
	"strings"

	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/models"
)

// SSHProbe answers ssh:exec by delegating to the privileged runtime's
// native ssh primitive. It never speaks the SSH protocol itself — key
// material and host policy live with the runtime, not the core.
type SSHProbe struct {
	base
	Native models.InvokeNative
}

// NewSSHProbe constructs the ssh plugin. native must be non-nil for
// executions to succeed; registration without it is still valid so the
// dispatcher can explain the missing runtime instead of "unknown intent".
func NewSSHProbe(priority int, native models.InvokeNative) *SSHProbe {
	return &SSHProbe{
		base: base{
			id:                "probe.ssh",
			intents:           []models.Intent{models.IntentSSHExec, models.IntentSSHText2Cmd},
			priority:          priority,
			browserCompatible: false,
		},
		Native: native,
	}
}

func (p *SSHProbe) CanHandle(text string, _ *models.PluginContext) bool {
	_, ok := intent.ExtractEntities(text)[models.EntityIP]
	return ok
}

func (p *SSHProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	if p.Native == nil || !pctx.RuntimePrivileged {
		return nil, models.NewExecutionError(models.ClassRuntimeRequired,
			"ssh execution needs the privileged runtime", models.ErrRuntimeRequired)
	}

	ent := intent.ExtractEntities(text)
	ip, ok := ent[models.EntityIP]
	if !ok {
		return errorResult(p.id, fmt.Errorf("no target host in %q", text)), nil
	}
	command := commandAfterHost(text, ip)
	if command == "" {
		return errorResult(p.id, fmt.Errorf("no command to run on %s", ip)), nil
	}

	raw, err := p.Native(ctx, "ssh", map[string]any{"host": ip, "command": command})
	if err != nil {
		return nil, models.NewExecutionError(models.ClassUpstreamError,
			fmt.Sprintf("ssh to %s failed", ip), err)
	}

	out := fmt.Sprintf("%v", raw)
	if b, ok := raw.([]byte); ok {
		out = string(b)
	}
	result := textResult(p.id, out)
	result.Content[0].Title = fmt.Sprintf("ssh %s: %s", ip, command)
	return result, nil
}

// commandAfterHost strips the leading verb and host token, leaving the
// remote command line.
func commandAfterHost(text, ip string) string {
	idx := strings.Index(text, ip)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len(ip):])
}
