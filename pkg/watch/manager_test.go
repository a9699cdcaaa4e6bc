package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/models"
)

type fakeStore struct {
	mu      sync.Mutex
	rules   []models.WatchRule
	updates []models.WatchRule
}

func (f *fakeStore) ActiveWatchRules(ctx context.Context, now time.Time) ([]models.WatchRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WatchRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeStore) UpdateWatchRule(ctx context.Context, rule models.WatchRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, rule)
	for i := range f.rules {
		if f.rules[i].ID == rule.ID {
			f.rules[i] = rule
		}
	}
	return nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	snapshots map[string]models.ContentSnapshot
	saved     []models.ContentSnapshot
	records   []models.ChangeRecord
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{snapshots: map[string]models.ContentSnapshot{}}
}

func (f *fakeCatalog) LatestSnapshot(ctx context.Context, targetID string, targetType models.TargetType) (models.ContentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[targetID]
	if !ok {
		return models.ContentSnapshot{}, models.ErrNotFound
	}
	return s, nil
}

func (f *fakeCatalog) SaveSnapshot(ctx context.Context, snap models.ContentSnapshot) (models.ContentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.ID = "snap-" + snap.Hash
	id := snap.ServiceID
	if id == "" {
		id = snap.DeviceID
	}
	f.snapshots[id] = snap
	f.saved = append(f.saved, snap)
	return snap, nil
}

func (f *fakeCatalog) SaveSnapshotAndChangeRecord(ctx context.Context, snap models.ContentSnapshot, rec models.ChangeRecord) (models.ContentSnapshot, models.ChangeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.ID = "snap-" + snap.Hash
	id := snap.ServiceID
	if id == "" {
		id = snap.DeviceID
	}
	f.snapshots[id] = snap
	f.saved = append(f.saved, snap)

	rec.ID = "rec-1"
	rec.CurrentSnapshotID = snap.ID
	f.records = append(f.records, rec)
	return snap, rec, nil
}

func (f *fakeCatalog) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type fakeDetector struct {
	score float64
	kind  models.ChangeType
}

func (f fakeDetector) Score(prev, curr models.ContentSnapshot) (float64, models.ChangeType) {
	return f.score, f.kind
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Append(eventType string, payload map[string]any) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return uint64(len(f.events)), nil
}

type fakeProber struct {
	result PollResult
	err    error
}

func (f fakeProber) Poll(ctx context.Context, rule models.WatchRule) (PollResult, error) {
	return f.result, f.err
}

func baseRule() models.WatchRule {
	return models.WatchRule{
		ID:                "rule-1",
		TargetID:          "svc-1",
		TargetType:        models.TargetService,
		OriginatingIntent: models.IntentCameraDescribe,
		CreatedAt:         time.Now(),
		ExpiresAt:         time.Now().Add(time.Hour),
		PollIntervalMS:    1,
		ChangeThreshold:   0.15,
		Active:            true,
	}
}

func TestTickPersistsFirstSnapshotWithoutChangeRecord(t *testing.T) {
	store := &fakeStore{rules: []models.WatchRule{baseRule()}}
	catalog := newFakeCatalog()
	events := &fakeEvents{}
	prober := fakeProber{result: PollResult{Snapshot: models.ContentSnapshot{
		ServiceID: "svc-1", Content: []byte("hello"), ContentType: "text/html", Hash: "h1",
	}}}
	m := New(store, catalog, fakeDetector{}, events, prober, nil, 4, time.Hour)

	m.tick(context.Background())

	assert.Len(t, catalog.saved, 1)
	assert.Empty(t, catalog.records)
	assert.NotContains(t, events.events, eventChangeDetected)
}

func TestTickEmitsChangeDetectedAboveThreshold(t *testing.T) {
	rule := baseRule()
	store := &fakeStore{rules: []models.WatchRule{rule}}
	catalog := newFakeCatalog()
	catalog.snapshots["svc-1"] = models.ContentSnapshot{ID: "prev", ServiceID: "svc-1", Hash: "old"}
	events := &fakeEvents{}
	prober := fakeProber{result: PollResult{Snapshot: models.ContentSnapshot{
		ServiceID: "svc-1", Content: []byte("changed"), ContentType: "text/html", Hash: "new",
	}}}
	m := New(store, catalog, fakeDetector{score: 0.5, kind: models.ChangeContent}, events, prober, nil, 4, time.Hour)

	m.tick(context.Background())

	require.Len(t, catalog.records, 1)
	assert.Equal(t, 0.5, catalog.records[0].ChangeScore)
	require.Len(t, catalog.saved, 1)
	assert.Equal(t, catalog.saved[0].ID, catalog.records[0].CurrentSnapshotID)
	assert.Equal(t, "prev", catalog.records[0].PreviousSnapshotID)
	assert.Contains(t, events.events, eventChangeDetected)
}

func TestTickSkipsBelowThresholdChange(t *testing.T) {
	rule := baseRule()
	store := &fakeStore{rules: []models.WatchRule{rule}}
	catalog := newFakeCatalog()
	catalog.snapshots["svc-1"] = models.ContentSnapshot{ID: "prev", ServiceID: "svc-1", Hash: "old"}
	events := &fakeEvents{}
	prober := fakeProber{result: PollResult{Snapshot: models.ContentSnapshot{
		ServiceID: "svc-1", Content: []byte("minor"), ContentType: "text/html", Hash: "new",
	}}}
	m := New(store, catalog, fakeDetector{score: 0.05, kind: models.ChangeContent}, events, prober, nil, 4, time.Hour)

	m.tick(context.Background())

	assert.Empty(t, catalog.records)
	assert.NotContains(t, events.events, eventChangeDetected)
}

func TestTickStatusTransitionAlwaysRecordsRegardlessOfThreshold(t *testing.T) {
	rule := baseRule()
	rule.ChangeThreshold = 0.99
	store := &fakeStore{rules: []models.WatchRule{rule}}
	catalog := newFakeCatalog()
	catalog.snapshots["svc-1"] = models.ContentSnapshot{ID: "prev", ServiceID: "svc-1", Hash: "old"}
	events := &fakeEvents{}
	prober := fakeProber{result: PollResult{
		Snapshot:      models.ContentSnapshot{ServiceID: "svc-1", Content: []byte("x"), ContentType: "text/html", Hash: "new"},
		StatusChanged: true,
	}}
	m := New(store, catalog, fakeDetector{score: 0, kind: models.ChangeContent}, events, prober, nil, 4, time.Hour)

	m.tick(context.Background())

	require.Len(t, catalog.records, 1)
	assert.Equal(t, models.ChangeStatus, catalog.records[0].ChangeType)
}

func TestTickExpiresPastRule(t *testing.T) {
	rule := baseRule()
	rule.ExpiresAt = time.Now().Add(-time.Minute)
	store := &fakeStore{rules: []models.WatchRule{rule}}
	catalog := newFakeCatalog()
	events := &fakeEvents{}
	m := New(store, catalog, fakeDetector{}, events, fakeProber{}, nil, 4, time.Hour)

	m.tick(context.Background())

	require.Len(t, store.updates, 1)
	assert.False(t, store.updates[0].Active)
	assert.Contains(t, events.events, eventWatchExpired)
}

func TestTickSkipsRuleNotYetDue(t *testing.T) {
	rule := baseRule()
	rule.PollIntervalMS = int((time.Hour).Milliseconds())
	now := time.Now()
	rule.LastPolled = &now
	store := &fakeStore{rules: []models.WatchRule{rule}}
	catalog := newFakeCatalog()
	events := &fakeEvents{}
	m := New(store, catalog, fakeDetector{}, events, fakeProber{}, nil, 4, time.Hour)

	m.tick(context.Background())

	assert.Empty(t, store.updates)
	assert.Empty(t, catalog.saved)
}

func TestStopDeactivatesRule(t *testing.T) {
	rule := baseRule()
	store := &fakeStore{rules: []models.WatchRule{rule}}
	events := &fakeEvents{}
	m := New(store, newFakeCatalog(), fakeDetector{}, events, fakeProber{}, nil, 4, time.Hour)

	m.StopRule(context.Background(), rule)

	require.Len(t, store.updates, 1)
	assert.False(t, store.updates[0].Active)
	assert.Contains(t, events.events, eventWatchExpired)
}

func TestTryLockPreventsDuplicateInFlightPoll(t *testing.T) {
	m := New(&fakeStore{}, newFakeCatalog(), fakeDetector{}, &fakeEvents{}, fakeProber{}, nil, 4, time.Hour)

	assert.True(t, m.tryLock("rule-1"))
	assert.False(t, m.tryLock("rule-1"))
	m.unlock("rule-1")
	assert.True(t, m.tryLock("rule-1"))
}
