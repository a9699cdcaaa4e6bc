// Package watch holds the set of active WatchRules, runs a cooperative
// scheduler loop over monotonic time, dispatches bounded-concurrent polls,
// and emits change_detected events through the change detector.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/netassist/core/pkg/change"
	"github.com/netassist/core/pkg/models"
)

// tickInterval is how often the scheduler loop re-evaluates due rules. It is
// independent of any individual rule's PollIntervalMS.
const tickInterval = time.Second

// cleanupInterval is the retention sweep cadence.
const cleanupInterval = 5 * time.Minute

// errorReportWindow bounds how often a single rule may emit error_occurred.
const errorReportWindow = 10 * time.Minute

// RuleStore is the subset of ConversationStore the scheduler needs.
type RuleStore interface {
	ActiveWatchRules(ctx context.Context, now time.Time) ([]models.WatchRule, error)
	UpdateWatchRule(ctx context.Context, rule models.WatchRule) error
}

// Catalog is the subset of DeviceCatalog the scheduler needs. A detected
// change persists its snapshot and the linking ChangeRecord through the
// single transactional call, never as two independent writes.
type Catalog interface {
	LatestSnapshot(ctx context.Context, targetID string, targetType models.TargetType) (models.ContentSnapshot, error)
	SaveSnapshot(ctx context.Context, snap models.ContentSnapshot) (models.ContentSnapshot, error)
	SaveSnapshotAndChangeRecord(ctx context.Context, snap models.ContentSnapshot, rec models.ChangeRecord) (models.ContentSnapshot, models.ChangeRecord, error)
	PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error)
}

// Detector is the subset of ChangeDetector the scheduler needs.
type Detector interface {
	Score(prev, curr models.ContentSnapshot) (float64, models.ChangeType)
}

// Events is the subset of EventLog the scheduler needs.
type Events interface {
	Append(eventType string, payload map[string]any) (uint64, error)
}

// ConfigReader is the subset of ConfigStore a Manager is constructed with.
// The Manager keeps it but reads no key from it; the snapshot-pruning
// horizon is the retention passed to New.
type ConfigReader interface {
	GetInt(key string, fallback int) int
}

// Manager schedules watch-rule polls and emits change events.
type Manager struct {
	store    RuleStore
	catalog  Catalog
	detector Detector
	events   Events
	prober   Prober
	config   ConfigReader

	maxConcurrent int
	retention     time.Duration

	mu        sync.Mutex
	inFlight  map[string]bool
	lastError map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Manager. maxConcurrent bounds concurrently in-flight
// polls; retention is the default snapshot-pruning horizon.
func New(store RuleStore, catalog Catalog, detector Detector, events Events, prober Prober, config ConfigReader, maxConcurrent int, retention time.Duration) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Manager{
		store:         store,
		catalog:       catalog,
		detector:      detector,
		events:        events,
		prober:        prober,
		config:        config,
		maxConcurrent: maxConcurrent,
		retention:     retention,
		inFlight:      make(map[string]bool),
		lastError:     make(map[string]time.Time),
	}
}

// Start launches the background scheduler and cleanup loops.
func (m *Manager) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.run(ctx)

	slog.Info("watch manager started", "max_concurrent_watches", m.maxConcurrent)
}

// Stop signals the scheduler to exit and waits for it to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	slog.Info("watch manager stopped")
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	pollTicker := time.NewTicker(tickInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			m.tick(ctx)
		case <-cleanupTicker.C:
			m.cleanup(ctx)
		}
	}
}

// tick evaluates every active rule once, dispatching due polls bounded by
// maxConcurrent.
func (m *Manager) tick(ctx context.Context) {
	now := time.Now()
	rules, err := m.store.ActiveWatchRules(ctx, now)
	if err != nil {
		slog.Error("watch: failed to list active rules", "error", err)
		return
	}

	sem := make(chan struct{}, m.maxConcurrent)
	var wg sync.WaitGroup
	for _, rule := range rules {
		rule := rule
		if rule.Expired(now) {
			m.expire(ctx, rule, "expired")
			continue
		}
		if !m.due(rule, now) {
			continue
		}
		if !m.tryLock(rule.ID) {
			continue // a poll for this rule is already in flight
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer m.unlock(rule.ID)
			m.pollRule(ctx, rule, now)
		}()
	}
	wg.Wait()
}

func (m *Manager) due(rule models.WatchRule, now time.Time) bool {
	if rule.LastPolled == nil {
		return true
	}
	interval := time.Duration(rule.PollIntervalMS) * time.Millisecond
	return !now.Before(rule.LastPolled.Add(interval))
}

func (m *Manager) tryLock(ruleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[ruleID] {
		return false
	}
	m.inFlight[ruleID] = true
	return true
}

func (m *Manager) unlock(ruleID string) {
	m.mu.Lock()
	delete(m.inFlight, ruleID)
	m.mu.Unlock()
}

// pollRule probes a single due rule's target, diffs against the prior
// snapshot, and persists/announces any significant change.
func (m *Manager) pollRule(ctx context.Context, rule models.WatchRule, now time.Time) {
	result, err := m.prober.Poll(ctx, rule)
	if err != nil {
		m.reportError(rule, err)
		return
	}

	prior, err := m.catalog.LatestSnapshot(ctx, rule.TargetID, rule.TargetType)
	noPriorSnapshot := errors.Is(err, models.ErrNotFound)
	if err != nil && !noPriorSnapshot {
		m.reportError(rule, err)
		return
	}

	if noPriorSnapshot {
		if _, err := m.catalog.SaveSnapshot(ctx, result.Snapshot); err != nil {
			m.reportError(rule, err)
			return
		}
		m.markPolled(ctx, rule, now, false)
		return
	}

	unchanged := !result.StatusChanged && prior.Hash == result.Snapshot.Hash
	if unchanged {
		m.markPolled(ctx, rule, now, false)
		return
	}

	var score float64
	var kind models.ChangeType
	if result.StatusChanged {
		score, kind = change.ScoreStatusTransition()
	} else {
		score, kind = m.detector.Score(prior, result.Snapshot)
	}

	if score < rule.ChangeThreshold && kind != models.ChangeStatus {
		m.markPolled(ctx, rule, now, false)
		return
	}

	summary := humanSummary(rule, kind, score)
	_, rec, err := m.catalog.SaveSnapshotAndChangeRecord(ctx, result.Snapshot, models.ChangeRecord{
		TargetID:           rule.TargetID,
		TargetType:         rule.TargetType,
		PreviousSnapshotID: prior.ID,
		ChangeType:         kind,
		ChangeScore:        score,
		DetectedAt:         now,
		HumanSummary:       summary,
	})
	if err != nil {
		m.reportError(rule, err)
		return
	}

	m.events.Append(eventChangeDetected, map[string]any{
		"rule_id":       rule.ID,
		"target_id":     rule.TargetID,
		"target_type":   string(rule.TargetType),
		"change_type":   string(kind),
		"change_score":  score,
		"human_summary": summary,
		"change_record_id": rec.ID,
	})
	m.markPolled(ctx, rule, now, true)
}

func (m *Manager) markPolled(ctx context.Context, rule models.WatchRule, now time.Time, changed bool) {
	rule.LastPolled = &now
	if changed {
		rule.LastChange = &now
	}
	rule.Active = true
	if err := m.store.UpdateWatchRule(ctx, rule); err != nil {
		slog.Error("watch: failed to persist poll result", "rule_id", rule.ID, "error", err)
	}
}

// expire deactivates a rule past its expiry or explicitly stopped.
func (m *Manager) expire(ctx context.Context, rule models.WatchRule, reason string) {
	rule.Active = false
	if err := m.store.UpdateWatchRule(ctx, rule); err != nil {
		slog.Error("watch: failed to persist rule expiry", "rule_id", rule.ID, "error", err)
		return
	}
	m.events.Append(eventWatchExpired, map[string]any{
		"rule_id": rule.ID, "target_id": rule.TargetID, "target_type": string(rule.TargetType), "reason": reason,
	})
}

// StopRule explicitly deactivates rule ahead of its expiry, as issued by a
// user "stop watching" command or the watch API.
func (m *Manager) StopRule(ctx context.Context, rule models.WatchRule) {
	m.expire(ctx, rule, "stopped")
}

// reportError emits at most one error_occurred per rule per
// errorReportWindow.
func (m *Manager) reportError(rule models.WatchRule, err error) {
	m.mu.Lock()
	last, seen := m.lastError[rule.ID]
	now := time.Now()
	shouldReport := !seen || now.Sub(last) >= errorReportWindow
	if shouldReport {
		m.lastError[rule.ID] = now
	}
	m.mu.Unlock()

	slog.Warn("watch: poll failed", "rule_id", rule.ID, "target_id", rule.TargetID, "error", err)
	if shouldReport {
		m.events.Append(eventErrorOccurred, map[string]any{
			"rule_id": rule.ID, "target_id": rule.TargetID, "error": err.Error(),
		})
	}
}

// cleanup runs the periodic retention sweep.
func (m *Manager) cleanup(ctx context.Context) {
	horizon := time.Now().Add(-m.retention)
	count, err := m.catalog.PruneSnapshots(ctx, horizon)
	if err != nil {
		slog.Error("watch: retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("watch: pruned stale snapshots", "count", count, "horizon", horizon)
	}
}

func humanSummary(rule models.WatchRule, kind models.ChangeType, score float64) string {
	switch kind {
	case models.ChangeStatus:
		return fmt.Sprintf("%s reachability changed", rule.TargetID)
	case models.ChangeMetadata:
		return fmt.Sprintf("%s metadata changed (score %.2f)", rule.TargetID, score)
	default:
		return fmt.Sprintf("%s content changed (score %.2f)", rule.TargetID, score)
	}
}

const (
	eventChangeDetected = "change_detected"
	eventWatchExpired   = "watch_expired"
	eventErrorOccurred  = "error_occurred"
)
