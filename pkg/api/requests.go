package api

import "github.com/netassist/core/pkg/models"

// TurnRequest is the POST /api/v1/turn body.
type TurnRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	Scope          string `json:"scope,omitempty"`
	Source         string `json:"source,omitempty"`
	Privileged     bool   `json:"privileged,omitempty"`
}

// SetScopeRequest is the PUT /api/v1/scope body.
type SetScopeRequest struct {
	Scope string `json:"scope"`
}

// TurnResponse carries the dispatched result back to the caller.
type TurnResponse struct {
	PluginID string                `json:"plugin_id"`
	Status   string                `json:"status"`
	Content  []ContentBlockPayload `json:"content"`
	Metadata ResultMetadataPayload `json:"metadata"`
}

// ContentBlockPayload is the wire shape of a content block.
type ContentBlockPayload struct {
	Type    string         `json:"type"`
	Data    string         `json:"data"`
	Title   string         `json:"title,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ResultMetadataPayload is the wire shape of result metadata.
type ResultMetadataPayload struct {
	DurationMS  int64  `json:"duration_ms"`
	Cached      bool   `json:"cached,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	DeviceCount int    `json:"device_count,omitempty"`
}

// WatchRulePayload is the wire shape of a watch rule.
type WatchRulePayload struct {
	ID              string  `json:"id"`
	ConversationID  string  `json:"conversation_id"`
	TargetID        string  `json:"target_id"`
	TargetType      string  `json:"target_type"`
	Intent          string  `json:"intent"`
	ExpiresAt       string  `json:"expires_at"`
	PollIntervalMS  int     `json:"poll_interval_ms"`
	ChangeThreshold float64 `json:"change_threshold"`
	Active          bool    `json:"active"`
}

// ChangeRecordPayload is the wire shape of a change record.
type ChangeRecordPayload struct {
	ID           string  `json:"id"`
	ChangeType   string  `json:"change_type"`
	ChangeScore  float64 `json:"change_score"`
	DetectedAt   string  `json:"detected_at"`
	HumanSummary string  `json:"human_summary"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toTurnResponse(r *models.Result) *TurnResponse {
	resp := &TurnResponse{
		PluginID: r.PluginID,
		Status:   string(r.Status),
		Metadata: ResultMetadataPayload{
			DurationMS:  r.Metadata.DurationMS,
			Cached:      r.Metadata.Cached,
			Truncated:   r.Metadata.Truncated,
			SourceURL:   r.Metadata.SourceURL,
			DeviceCount: r.Metadata.DeviceCount,
		},
	}
	for _, b := range r.Content {
		resp.Content = append(resp.Content, ContentBlockPayload{
			Type: string(b.Type), Data: b.Data, Title: b.Title, Summary: b.Summary, Payload: b.Payload,
		})
	}
	return resp
}
