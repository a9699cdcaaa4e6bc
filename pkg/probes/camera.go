package probes

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/models"
)

// snapshotPaths are the HTTP still-image endpoints tried in order when
// describing a camera. Vendor-specific paths belong to external ONVIF/RTSP
// plugins; these cover the common generic ones.
var snapshotPaths = []string{
	"/snapshot.jpg",
	"/jpg/image.jpg",
	"/cgi-bin/snapshot.cgi",
}

// maxSnapshotBytes caps a fetched still image.
const maxSnapshotBytes = 4 * 1024 * 1024

// CameraProbe answers camera:describe and camera:snapshot over plain HTTP
// still-image endpoints. When an LLM client is wired it narrates the frame;
// otherwise the raw image block is returned for the presentation layer.
type CameraProbe struct {
	base
	client *http.Client
}

// NewCameraProbe constructs the camera plugin.
func NewCameraProbe(priority int) *CameraProbe {
	return &CameraProbe{
		base: base{
			id:                "probe.camera",
			intents:           []models.Intent{models.IntentCameraDescribe, models.IntentCameraSnapshot, models.IntentCameraHealth},
			priority:          priority,
			browserCompatible: true,
		},
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *CameraProbe) CanHandle(text string, _ *models.PluginContext) bool {
	_, ok := intent.ExtractEntities(text)[models.EntityIP]
	return ok
}

func (p *CameraProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	ent := intent.ExtractEntities(text)
	ip, ok := ent[models.EntityIP]
	if !ok {
		ip = strings.TrimSpace(text)
	}

	frame, path, err := p.fetchFrame(ctx, ip)
	if err != nil {
		return nil, models.NewExecutionError(models.ClassUpstreamError,
			fmt.Sprintf("no snapshot endpoint answered on %s", ip), err)
	}

	p.record(ctx, pctx, ip, path, frame)

	blocks := []models.ContentBlock{{
		Type:  models.ContentImage,
		Data:  base64.StdEncoding.EncodeToString(frame),
		Title: fmt.Sprintf("Camera %s", ip),
	}}

	if pctx.Services.LLM != nil {
		desc, err := pctx.Services.LLM.Describe(ctx, "Describe what this camera sees.", frame)
		if err == nil {
			blocks = append([]models.ContentBlock{{Type: models.ContentText, Data: desc}}, blocks...)
		}
	}

	return &models.Result{
		PluginID: p.id,
		Status:   models.StatusSuccess,
		Content:  blocks,
		Metadata: models.ResultMetadata{Extra: map[string]any{"snapshot_path": path}},
	}, nil
}

// fetchFrame tries each known snapshot path until one returns an image.
func (p *CameraProbe) fetchFrame(ctx context.Context, ip string) ([]byte, string, error) {
	var lastErr error
	for _, path := range snapshotPaths {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		url := "http://" + ip + path
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
		resp.Body.Close()
		if err != nil || resp.StatusCode >= 400 || len(body) == 0 {
			lastErr = fmt.Errorf("%s: %s", url, resp.Status)
			continue
		}
		return body, path, nil
	}
	return nil, "", lastErr
}

// record persists the device, its camera service, and a frame snapshot so
// the watch pipeline has a baseline to diff against.
func (p *CameraProbe) record(ctx context.Context, pctx *models.PluginContext, ip, path string, frame []byte) {
	if pctx.Services.Persistence == nil {
		return
	}
	dev, err := pctx.Services.Persistence.UpsertDevice(ctx, &models.Device{IP: ip})
	if err != nil {
		return
	}
	svc, err := pctx.Services.Persistence.UpsertService(ctx, &models.Service{
		DeviceID: dev.ID,
		Type:     models.ServiceONVIF,
		Port:     80,
		Path:     path,
		Status:   models.ServiceOnline,
	})
	if err != nil {
		return
	}
	_, _ = pctx.Services.Persistence.SaveSnapshot(ctx, &models.ContentSnapshot{
		ServiceID:   svc.ID,
		Content:     frame,
		ContentType: "image/jpeg",
		Size:        len(frame),
	})
}
