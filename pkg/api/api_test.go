package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/models"
)

func TestChannelForConversationEvents(t *testing.T) {
	evt := eventlog.Event{Type: eventlog.TypeMessageAdded, Payload: map[string]any{"conversation_id": "conv-1"}}
	assert.Equal(t, "conversation:conv-1", channelFor(evt))
}

func TestChannelForSystemEvents(t *testing.T) {
	evt := eventlog.Event{Type: eventlog.TypeSettingsChanged, Payload: map[string]any{"key": "log.level"}}
	assert.Equal(t, "system", channelFor(evt))
}

func TestEventPayloadShape(t *testing.T) {
	now := time.Now()
	evt := eventlog.Event{Type: eventlog.TypeChangeDetected, Sequence: 7, Time: now, Payload: map[string]any{"rule_id": "r1"}}
	payload := eventPayload(evt)
	assert.Equal(t, "event", payload["type"])
	assert.Equal(t, eventlog.TypeChangeDetected, payload["event"])
	assert.Equal(t, uint64(7), payload["sequence"])
}

func TestConnectionManagerTracksEventLog(t *testing.T) {
	log := eventlog.New()
	m := NewConnectionManager(log)
	defer m.Close()

	assert.Equal(t, 0, m.ActiveConnections())
	// No subscribers yet; appends must not block or panic.
	_, err := log.Append(eventlog.TypeChangeDetected, map[string]any{"conversation_id": "conv-1"})
	require.NoError(t, err)
}

func TestToTurnResponse(t *testing.T) {
	result := &models.Result{
		PluginID: "probe.ping",
		Status:   models.StatusSuccess,
		Content:  []models.ContentBlock{{Type: models.ContentText, Data: "10.0.0.1: Reachable (2 ms)"}},
		Metadata: models.ResultMetadata{DurationMS: 2, Cached: true},
	}
	resp := toTurnResponse(result)
	assert.Equal(t, "probe.ping", resp.PluginID)
	assert.Equal(t, "success", resp.Status)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.True(t, resp.Metadata.Cached)
}

func TestToWatchRulePayload(t *testing.T) {
	expires := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := toWatchRulePayload(models.WatchRule{
		ID: "rule-1", ConversationID: "conv-1", TargetID: "svc-1",
		TargetType: models.TargetService, OriginatingIntent: models.IntentCameraDescribe,
		ExpiresAt: expires, PollIntervalMS: 30000, ChangeThreshold: 0.1, Active: true,
	})
	assert.Equal(t, "service", payload.TargetType)
	assert.Equal(t, "camera:describe", payload.Intent)
	assert.Equal(t, "2026-08-01T12:00:00Z", payload.ExpiresAt)
}
