// Package probes carries the in-repo reference plugin implementations:
// ping, port scan, subnet scan, HTTP browse, camera describe, and an SSH
// executor. They exist to exercise the plugin contract end to end — real
// vendor-specific probes (ONVIF discovery, RTSP capture, MQTT clients) are
// external collaborators that register through the same Registry.
package probes

import (
	"time"

	"github.com/netassist/core/pkg/models"
)

// dialTimeout bounds a single TCP connect attempt inside any probe.
const dialTimeout = 2 * time.Second

// base provides the static half of the plugin contract so each probe only
// implements CanHandle/Execute.
type base struct {
	id                string
	intents           []models.Intent
	priority          int
	browserCompatible bool
}

func (b base) ID() string                        { return b.id }
func (b base) SupportedIntents() []models.Intent { return b.intents }
func (b base) Priority() int                     { return b.priority }
func (b base) BrowserCompatible() bool           { return b.browserCompatible }

func (b base) Initialize(_ *models.PluginContext) error { return nil }
func (b base) Dispose() error                           { return nil }

// textResult wraps a single text block into a success Result.
func textResult(pluginID, text string) *models.Result {
	return &models.Result{
		PluginID: pluginID,
		Status:   models.StatusSuccess,
		Content:  []models.ContentBlock{{Type: models.ContentText, Data: text}},
	}
}

// errorResult wraps an upstream failure into an error Result so the
// dispatcher surfaces it with context instead of swallowing it.
func errorResult(pluginID string, err error) *models.Result {
	return &models.Result{
		PluginID: pluginID,
		Status:   models.StatusError,
		Err:      err,
		Content: []models.ContentBlock{{
			Type: models.ContentText,
			Data: err.Error(),
		}},
	}
}
