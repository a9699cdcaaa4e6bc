package autowatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/models"
)

type fakeRuleStore struct {
	mu       sync.Mutex
	rules    map[string]models.WatchRule
	extended []string
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: map[string]models.WatchRule{}}
}

func (f *fakeRuleStore) CreateWatchRule(ctx context.Context, rule models.WatchRule) (models.WatchRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeRuleStore) ExtendWatchRule(ctx context.Context, id string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return models.ErrNotFound
	}
	rule.ExpiresAt = expiresAt
	f.rules[id] = rule
	f.extended = append(f.extended, id)
	return nil
}

func (f *fakeRuleStore) WatchRulesForTarget(ctx context.Context, targetID string, targetType models.TargetType) ([]models.WatchRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WatchRule
	for _, r := range f.rules {
		if r.TargetID == targetID && r.TargetType == targetType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) GetWatchRule(ctx context.Context, id string) (models.WatchRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return models.WatchRule{}, models.ErrNotFound
	}
	return rule, nil
}

func (f *fakeRuleStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rules)
}

type fakeMessages struct {
	mu       sync.Mutex
	appended []models.ConversationMessage
}

func (f *fakeMessages) AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.NewString()
	f.appended = append(f.appended, msg)
	return msg, nil
}

type fakeConfig struct{ values map[string]any }

func (f *fakeConfig) GetBool(key string, fallback bool) bool {
	if v, ok := f.values[key].(bool); ok {
		return v
	}
	return fallback
}

func (f *fakeConfig) GetInt(key string, fallback int) int {
	if v, ok := f.values[key].(int); ok {
		return v
	}
	return fallback
}

func (f *fakeConfig) GetFloat(key string, fallback float64) float64 {
	if v, ok := f.values[key].(float64); ok {
		return v
	}
	return fallback
}

func newIntegrator(t *testing.T, store *fakeRuleStore, messages *fakeMessages, cfg map[string]any) *Integrator {
	t.Helper()
	i, err := New(store, messages, &fakeConfig{values: cfg}, eventlog.New(), []string{`(?i)\bdemo\b`})
	require.NoError(t, err)
	return i
}

func cameraQuery(text string) models.Classification {
	return models.Classification{
		Intent:     models.IntentCameraDescribe,
		Confidence: 0.9,
		Entities:   models.Entities{models.EntityIP: "192.168.1.100"},
		RawText:    text,
	}
}

func TestFirstColdQueryCreatesNoRule(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera",
	})
	require.NoError(t, err)
	assert.Nil(t, rule)
	assert.Equal(t, 0, store.count())
}

func TestRecentlyObservedTargetCreatesRule(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera",
		PriorObservation: time.Now().Add(-30 * time.Second),
	})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "svc-1", rule.TargetID)
	assert.True(t, rule.Active)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rule.ExpiresAt, 5*time.Second)
}

func TestRepeatedQueryExtendsInsteadOfDuplicating(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)
	target := TargetRef{ID: "svc-1", Type: models.TargetService, ServiceType: "camera"}

	_, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), target)
	require.NoError(t, err)

	first, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), target)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), target)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, 1, store.count())
	assert.Equal(t, first.ID, second.ID)
	assert.Contains(t, store.extended, first.ID)
}

func TestMonitoringFlagBypassesRecency(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("monitoruj 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera", Monitoring: true,
	})
	require.NoError(t, err)
	require.NotNil(t, rule)
}

func TestIneligibleIntentIgnored(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)

	c := models.Classification{Intent: models.IntentNetworkPing, RawText: "ping 10.0.0.1"}
	rule, err := i.ConsiderQuery(context.Background(), "conv-1", c, TargetRef{
		ID: "dev-1", Type: models.TargetDevice, Monitoring: true,
	})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestExclusionPatternSuppressesWatch(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, nil)

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("demo: co widać na 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera", Monitoring: true,
	})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestAutoWatchDisabledByConfig(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, map[string]any{"watch.auto.enabled": false})

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera", Monitoring: true,
	})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestServiceTunedCadenceApplied(t *testing.T) {
	store := newFakeRuleStore()
	i := newIntegrator(t, store, &fakeMessages{}, map[string]any{
		"watch.service_interval.camera":  30_000,
		"watch.service_threshold.camera": 0.10,
	})

	rule, err := i.ConsiderQuery(context.Background(), "conv-1", cameraQuery("co widać na 192.168.1.100"), TargetRef{
		ID: "svc-1", Type: models.TargetService, ServiceType: "camera", Monitoring: true,
	})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 30_000, rule.PollIntervalMS)
	assert.Equal(t, 0.10, rule.ChangeThreshold)
}

func TestChangeEventInjectsAssistantMessage(t *testing.T) {
	store := newFakeRuleStore()
	messages := &fakeMessages{}
	i := newIntegrator(t, store, messages, nil)

	created, err := store.CreateWatchRule(context.Background(), models.WatchRule{
		ConversationID:    "conv-9",
		TargetID:          "svc-1",
		TargetType:        models.TargetService,
		OriginatingIntent: models.IntentCameraDescribe,
		Active:            true,
	})
	require.NoError(t, err)

	i.HandleEvent(eventlog.Event{
		Type:     eventlog.TypeChangeDetected,
		Sequence: 42,
		Payload: map[string]any{
			"rule_id":          created.ID,
			"human_summary":    "svc-1 content changed (score 0.80)",
			"change_record_id": "rec-7",
		},
	})

	require.Len(t, messages.appended, 1)
	msg := messages.appended[0]
	assert.Equal(t, "conv-9", msg.ConversationID)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Contains(t, msg.Text, "svc-1 content changed")
	assert.Equal(t, "rec-7", msg.Metadata.ChangeRecordID)
	assert.Len(t, msg.Metadata.QuickActions, 3)
}

func TestNonChangeEventsIgnored(t *testing.T) {
	messages := &fakeMessages{}
	i := newIntegrator(t, newFakeRuleStore(), messages, nil)

	i.HandleEvent(eventlog.Event{Type: eventlog.TypeScanStarted, Payload: map[string]any{}})
	assert.Empty(t, messages.appended)
}
