package probes

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/models"
)

// netScanConcurrency bounds parallel host probes during a subnet sweep.
const netScanConcurrency = 64

// netScanPorts are the ports whose response marks a host as present.
var netScanPorts = []int{80, 443, 22, 554}

// NetScanProbe answers network:scan with a /24 sweep: every host in the
// subnet is TCP-probed on a short port list, and responders are recorded
// as devices.
type NetScanProbe struct {
	base
	// DefaultSubnet is swept when the utterance names none; derived from
	// the host's own address at wiring time.
	DefaultSubnet string
}

// NewNetScanProbe constructs the subnet-scan plugin.
func NewNetScanProbe(priority int, defaultSubnet string) *NetScanProbe {
	return &NetScanProbe{
		base: base{
			id:                "probe.netscan",
			intents:           []models.Intent{models.IntentNetworkScan, models.IntentNetworkARP},
			priority:          priority,
			browserCompatible: false,
		},
		DefaultSubnet: defaultSubnet,
	}
}

func (p *NetScanProbe) CanHandle(_ string, _ *models.PluginContext) bool { return true }

func (p *NetScanProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	subnet := p.DefaultSubnet
	if s, ok := intent.ExtractEntities(text)[models.EntitySubnet]; ok {
		subnet = s
	}
	if subnet == "" {
		return errorResult(p.id, fmt.Errorf("no subnet to scan")), nil
	}

	prefix, err := subnetPrefix(subnet)
	if err != nil {
		return errorResult(p.id, err), nil
	}

	alive := p.sweep(ctx, prefix)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sort.Strings(alive)

	if pctx.Services.Persistence != nil {
		for _, ip := range alive {
			_, _ = pctx.Services.Persistence.UpsertDevice(ctx, &models.Device{IP: ip})
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Network scan of %s: %d devices found\n", subnet, len(alive))
	for _, ip := range alive {
		fmt.Fprintf(&b, "  %s\n", ip)
	}
	result := textResult(p.id, b.String())
	result.Metadata.DeviceCount = len(alive)
	return result, nil
}

// subnetPrefix turns "192.168.1.0/24" into "192.168.1.".
func subnetPrefix(subnet string) (string, error) {
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return "", fmt.Errorf("bad subnet %q: %w", subnet, err)
	}
	ones, _ := ipNet.Mask.Size()
	if ones != 24 {
		return "", fmt.Errorf("only /24 sweeps are supported, got %q", subnet)
	}
	parts := strings.Split(ipNet.IP.String(), ".")
	return strings.Join(parts[:3], ".") + ".", nil
}

func (p *NetScanProbe) sweep(ctx context.Context, prefix string) []string {
	sem := make(chan struct{}, netScanConcurrency)
	var mu sync.Mutex
	var alive []string
	var wg sync.WaitGroup

	for host := 1; host < 255; host++ {
		if ctx.Err() != nil {
			break
		}
		ip := fmt.Sprintf("%s%d", prefix, host)
		wg.Add(1)
		sem <- struct{}{}
		go func(ip string) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, port := range netScanPorts {
				if tcpAlive(ctx, ip, port) {
					mu.Lock()
					alive = append(alive, ip)
					mu.Unlock()
					return
				}
			}
		}(ip)
	}
	wg.Wait()
	return alive
}
