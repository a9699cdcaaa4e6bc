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

// commonPorts is the default scan set when the utterance names no port.
var commonPorts = []int{21, 22, 23, 25, 53, 80, 110, 143, 443, 554, 1883, 3306, 5432, 8080, 8443, 8554}

// portScanConcurrency bounds parallel connect attempts per scan.
const portScanConcurrency = 16

// servicesByPort maps well-known ports to the service type recorded in the
// device catalog.
var servicesByPort = map[int]models.ServiceType{
	22:   models.ServiceSSH,
	80:   models.ServiceHTTP,
	443:  models.ServiceHTTPS,
	554:  models.ServiceRTSP,
	1883: models.ServiceMQTT,
	8080: models.ServiceHTTP,
	8443: models.ServiceHTTPS,
	8554: models.ServiceRTSP,
}

// PortScanProbe answers network:port-scan with a bounded-concurrency TCP
// connect sweep, recording discovered services on the target device.
type PortScanProbe struct {
	base
}

// NewPortScanProbe constructs the port-scan plugin.
func NewPortScanProbe(priority int) *PortScanProbe {
	return &PortScanProbe{base: base{
		id:                "probe.portscan",
		intents:           []models.Intent{models.IntentNetworkPortScan},
		priority:          priority,
		browserCompatible: true,
	}}
}

func (p *PortScanProbe) CanHandle(text string, _ *models.PluginContext) bool {
	_, ok := intent.ExtractEntities(text)[models.EntityIP]
	return ok
}

func (p *PortScanProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	ent := intent.ExtractEntities(text)
	ip, ok := ent[models.EntityIP]
	if !ok {
		ip = strings.TrimSpace(text)
	}

	ports := commonPorts
	if ps, ok := ent[models.EntityPort]; ok {
		var single int
		if _, err := fmt.Sscanf(ps, "%d", &single); err == nil {
			ports = []int{single}
		}
	}

	open := p.sweep(ctx, ip, ports)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sort.Ints(open)

	p.record(ctx, pctx, ip, open)

	var b strings.Builder
	fmt.Fprintf(&b, "Port scan of %s: %d/%d open\n", ip, len(open), len(ports))
	for _, port := range open {
		svc := servicesByPort[port]
		if svc == "" {
			svc = "tcp"
		}
		fmt.Fprintf(&b, "  %d (%s)\n", port, svc)
	}
	result := textResult(p.id, b.String())
	result.Metadata.Extra = map[string]any{"open_ports": open}
	return result, nil
}

// sweep connect-scans ports on ip with bounded concurrency, honoring ctx.
func (p *PortScanProbe) sweep(ctx context.Context, ip string, ports []int) []int {
	sem := make(chan struct{}, portScanConcurrency)
	var mu sync.Mutex
	var open []int
	var wg sync.WaitGroup

	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(port int) {
			defer wg.Done()
			defer func() { <-sem }()
			d := net.Dialer{Timeout: dialTimeout}
			conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
			if err != nil {
				return
			}
			conn.Close()
			mu.Lock()
			open = append(open, port)
			mu.Unlock()
		}(port)
	}
	wg.Wait()
	return open
}

// record persists the device and every discovered service.
func (p *PortScanProbe) record(ctx context.Context, pctx *models.PluginContext, ip string, open []int) {
	if pctx.Services.Persistence == nil {
		return
	}
	dev, err := pctx.Services.Persistence.UpsertDevice(ctx, &models.Device{IP: ip})
	if err != nil {
		return
	}
	for _, port := range open {
		svcType := servicesByPort[port]
		if svcType == "" {
			continue
		}
		_, _ = pctx.Services.Persistence.UpsertService(ctx, &models.Service{
			DeviceID: dev.ID,
			Type:     svcType,
			Port:     port,
			Status:   models.ServiceOnline,
		})
	}
}
