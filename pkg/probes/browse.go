package probes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/models"
)

// maxFetchBytes caps how much of a response body a browse fetch keeps.
const maxFetchBytes = 256 * 1024

// BrowseProbe answers browse:url and browse:search by fetching the page and
// returning its (possibly truncated) body, recording a content snapshot for
// the watch pipeline to diff against.
type BrowseProbe struct {
	base
	client *http.Client
	// SearchURL is the template a browse:search query is expanded into.
	SearchURL string
}

// NewBrowseProbe constructs the browse plugin.
func NewBrowseProbe(priority int) *BrowseProbe {
	return &BrowseProbe{
		base: base{
			id:                "probe.browse",
			intents:           []models.Intent{models.IntentBrowseURL, models.IntentBrowseSearch},
			priority:          priority,
			browserCompatible: true,
		},
		client:    &http.Client{Timeout: 25 * time.Second},
		SearchURL: "https://duckduckgo.com/html/?q=",
	}
}

func (p *BrowseProbe) CanHandle(text string, _ *models.PluginContext) bool {
	ent := intent.ExtractEntities(text)
	_, hasURL := ent[models.EntityURL]
	_, hasText := ent[models.EntityText]
	return hasURL || hasText
}

func (p *BrowseProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	ent := intent.ExtractEntities(text)
	url, hasURL := ent[models.EntityURL]
	if !hasURL {
		if q, ok := ent[models.EntityText]; ok {
			url = p.SearchURL + strings.ReplaceAll(strings.TrimSpace(q), " ", "+")
		} else {
			url = strings.TrimSpace(text)
		}
	}

	if pctx.Services.EventLog != nil {
		pctx.Services.EventLog.Append("browse_requested", map[string]any{"url": url})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errorResult(p.id, fmt.Errorf("bad url %q: %w", url, err)), nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, models.NewExecutionError(models.ClassUpstreamError, "fetch failed for "+url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, models.NewExecutionError(models.ClassUpstreamError, "read failed for "+url, err)
	}
	truncated := len(body) > maxFetchBytes
	if truncated {
		body = body[:maxFetchBytes]
	}

	if resp.StatusCode >= 400 {
		return nil, models.NewExecutionError(models.ClassUpstreamError,
			fmt.Sprintf("%s returned %s", url, resp.Status), nil)
	}

	if pctx.Services.EventLog != nil {
		pctx.Services.EventLog.Append("content_fetched", map[string]any{
			"url": url, "status": resp.StatusCode, "bytes": len(body), "truncated": truncated,
		})
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}

	return &models.Result{
		PluginID: p.id,
		Status:   models.StatusSuccess,
		Content: []models.ContentBlock{{
			Type:  models.ContentText,
			Data:  string(body),
			Title: url,
		}},
		Metadata: models.ResultMetadata{
			SourceURL: url,
			Truncated: truncated,
			Extra:     map[string]any{"content_type": contentType},
		},
	}, nil
}
