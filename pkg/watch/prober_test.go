package watch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/models"
)

type fakeResolver struct {
	devices  map[string]models.Device
	services map[string]models.Service
}

func (f *fakeResolver) GetDevice(ctx context.Context, id string) (models.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return models.Device{}, models.ErrNotFound
	}
	return d, nil
}

func (f *fakeResolver) GetService(ctx context.Context, id string) (models.Service, error) {
	s, ok := f.services[id]
	if !ok {
		return models.Service{}, models.ErrNotFound
	}
	return s, nil
}

type fakePlugin struct {
	lastText string
	result   *models.Result
}

func (p *fakePlugin) ID() string                                   { return "fake" }
func (p *fakePlugin) SupportedIntents() []models.Intent            { return nil }
func (p *fakePlugin) Priority() int                                { return 0 }
func (p *fakePlugin) BrowserCompatible() bool                      { return true }
func (p *fakePlugin) CanHandle(string, *models.PluginContext) bool { return true }
func (p *fakePlugin) Initialize(*models.PluginContext) error       { return nil }
func (p *fakePlugin) Dispose() error                               { return nil }

func (p *fakePlugin) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	p.lastText = text
	return p.result, nil
}

type singlePluginRegistry struct{ plugin models.Plugin }

func (r *singlePluginRegistry) ByIntent(models.Intent) []models.Plugin {
	return []models.Plugin{r.plugin}
}

func TestPollResolvesDeviceAddress(t *testing.T) {
	plugin := &fakePlugin{result: &models.Result{
		Status:  models.StatusSuccess,
		Content: []models.ContentBlock{{Type: models.ContentText, Data: "192.168.1.7: Reachable"}},
	}}
	resolver := &fakeResolver{devices: map[string]models.Device{
		"dev-1": {ID: "dev-1", IP: "192.168.1.7"},
	}}
	p := NewPluginProber(&singlePluginRegistry{plugin}, resolver, &models.PluginContext{})

	rule := models.WatchRule{ID: "r1", TargetID: "dev-1", TargetType: models.TargetDevice, OriginatingIntent: models.IntentNetworkPing}
	result, err := p.Poll(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7", plugin.lastText)
	assert.Equal(t, "dev-1", result.Snapshot.DeviceID)
	assert.NotEmpty(t, result.Snapshot.Hash)
}

func TestPollRendersServiceURL(t *testing.T) {
	plugin := &fakePlugin{result: &models.Result{
		Status:  models.StatusSuccess,
		Content: []models.ContentBlock{{Type: models.ContentText, Data: "<html>page</html>"}},
	}}
	resolver := &fakeResolver{
		devices:  map[string]models.Device{"dev-1": {ID: "dev-1", IP: "10.0.0.4"}},
		services: map[string]models.Service{"svc-1": {ID: "svc-1", DeviceID: "dev-1", Type: models.ServiceHTTP, Port: 8080, Path: "/status"}},
	}
	p := NewPluginProber(&singlePluginRegistry{plugin}, resolver, &models.PluginContext{})

	rule := models.WatchRule{ID: "r1", TargetID: "svc-1", TargetType: models.TargetService, OriginatingIntent: models.IntentBrowseURL}
	result, err := p.Poll(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.4:8080/status", plugin.lastText)
	assert.Equal(t, "svc-1", result.Snapshot.ServiceID)
}

func TestPollStatusChangedFlagPropagates(t *testing.T) {
	plugin := &fakePlugin{result: &models.Result{
		Status:   models.StatusSuccess,
		Content:  []models.ContentBlock{{Type: models.ContentText, Data: "offline"}},
		Metadata: models.ResultMetadata{Extra: map[string]any{"status_changed": true}},
	}}
	resolver := &fakeResolver{devices: map[string]models.Device{"dev-1": {ID: "dev-1", IP: "10.0.0.4"}}}
	p := NewPluginProber(&singlePluginRegistry{plugin}, resolver, &models.PluginContext{})

	rule := models.WatchRule{ID: "r1", TargetID: "dev-1", TargetType: models.TargetDevice, OriginatingIntent: models.IntentNetworkPing}
	result, err := p.Poll(context.Background(), rule)
	require.NoError(t, err)
	assert.True(t, result.StatusChanged)
}

func TestPollUnknownTargetErrors(t *testing.T) {
	plugin := &fakePlugin{result: &models.Result{Status: models.StatusSuccess}}
	p := NewPluginProber(&singlePluginRegistry{plugin}, &fakeResolver{}, &models.PluginContext{})

	rule := models.WatchRule{ID: "r1", TargetID: "missing", TargetType: models.TargetDevice, OriginatingIntent: models.IntentNetworkPing}
	_, err := p.Poll(context.Background(), rule)
	assert.Error(t, err)
}
