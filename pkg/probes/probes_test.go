package probes

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/models"
)

type fakeAccessor struct {
	mu        sync.Mutex
	devices   []models.Device
	services  []models.Service
	snapshots []models.ContentSnapshot
}

func (f *fakeAccessor) UpsertDevice(ctx context.Context, d *models.Device) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = "dev-" + d.IP
	f.devices = append(f.devices, *d)
	return d, nil
}

func (f *fakeAccessor) UpsertService(ctx context.Context, s *models.Service) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = "svc"
	f.services = append(f.services, *s)
	return s, nil
}

func (f *fakeAccessor) SaveSnapshot(ctx context.Context, snap *models.ContentSnapshot) (*models.ContentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, *snap)
	return snap, nil
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeEvents) Append(eventType string, payload map[string]any) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return uint64(len(f.types)), nil
}

func TestPingCanHandleRequiresIP(t *testing.T) {
	p := NewPingProbe(10)
	assert.True(t, p.CanHandle("ping 192.168.1.1", nil))
	assert.False(t, p.CanHandle("ping the server", nil))
}

func TestPingLoopbackIsReachable(t *testing.T) {
	accessor := &fakeAccessor{}
	p := NewPingProbe(10)
	pctx := &models.PluginContext{Services: models.ServiceBundle{Persistence: accessor}}

	// A bare address is what the watch poller hands a probe. On loopback a
	// closed port answers with an active refusal, which proves liveness.
	result, err := p.Execute(context.Background(), "127.0.0.1", pctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Contains(t, result.Content[0].Data, "127.0.0.1")
	assert.Contains(t, result.Content[0].Data, "Reachable")
	require.Len(t, accessor.devices, 1)
}

func TestTCPAliveOnListeningPort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	addr := server.Listener.Addr().(*net.TCPAddr)
	assert.True(t, tcpAlive(context.Background(), "127.0.0.1", addr.Port))
}

func TestBrowseFetchesAndRecordsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	events := &fakeEvents{}
	p := NewBrowseProbe(5)
	pctx := &models.PluginContext{Services: models.ServiceBundle{EventLog: events}}

	result, err := p.Execute(context.Background(), "otwórz "+server.URL, pctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Contains(t, result.Content[0].Data, "hello")
	assert.Equal(t, server.URL, result.Metadata.SourceURL)
	assert.Contains(t, events.types, "browse_requested")
	assert.Contains(t, events.types, "content_fetched")
}

func TestBrowseUpstreamErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewBrowseProbe(5)
	_, err := p.Execute(context.Background(), server.URL, &models.PluginContext{})
	require.Error(t, err)

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ClassUpstreamError, execErr.Class)
}

func TestBrowseSearchQueryExpansion(t *testing.T) {
	p := NewBrowseProbe(5)
	assert.True(t, p.CanHandle("? gdzie jest moja kamera", nil))
}

func TestPortScanRecordsScannedDevice(t *testing.T) {
	accessor := &fakeAccessor{}
	p := NewPortScanProbe(10)
	pctx := &models.PluginContext{Services: models.ServiceBundle{Persistence: accessor}}

	result, err := p.Execute(context.Background(), "127.0.0.1", pctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Contains(t, result.Content[0].Data, "Port scan of 127.0.0.1")
	require.Len(t, accessor.devices, 1)
	assert.Equal(t, "127.0.0.1", accessor.devices[0].IP)
}

func TestSubnetPrefix(t *testing.T) {
	prefix, err := subnetPrefix("192.168.1.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.", prefix)

	_, err = subnetPrefix("10.0.0.0/8")
	assert.Error(t, err)

	_, err = subnetPrefix("not-a-subnet")
	assert.Error(t, err)
}

func TestSSHRequiresPrivilegedRuntime(t *testing.T) {
	p := NewSSHProbe(5, nil)
	_, err := p.Execute(context.Background(), "ssh 10.0.0.1 uptime", &models.PluginContext{RuntimePrivileged: false})
	require.Error(t, err)

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ClassRuntimeRequired, execErr.Class)
}

func TestSSHDelegatesToNative(t *testing.T) {
	var gotHost, gotCommand string
	native := func(ctx context.Context, command string, args map[string]any) (any, error) {
		gotHost = args["host"].(string)
		gotCommand = args["command"].(string)
		return []byte("up 12 days"), nil
	}
	p := NewSSHProbe(5, native)

	result, err := p.Execute(context.Background(), "ssh 10.0.0.1 uptime", &models.PluginContext{RuntimePrivileged: true})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", gotHost)
	assert.Equal(t, "uptime", gotCommand)
	assert.Contains(t, result.Content[0].Data, "up 12 days")
}

func TestCommandAfterHost(t *testing.T) {
	assert.Equal(t, "df -h", commandAfterHost("ssh 10.0.0.1 df -h", "10.0.0.1"))
	assert.Equal(t, "", commandAfterHost("ssh 10.0.0.1", "10.0.0.1"))
	assert.Equal(t, "", commandAfterHost("ssh host df", "10.0.0.1"))
}

func TestChatFallbackWithoutLLM(t *testing.T) {
	p := NewChatProbe(1)
	result, err := p.Execute(context.Background(), "co słychać?", &models.PluginContext{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Contains(t, result.Content[0].Data, "ping 192.168.1.1")
}
