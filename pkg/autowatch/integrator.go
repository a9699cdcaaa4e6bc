// Package autowatch bridges interactive queries and background watches. A
// user query against a device or service, repeated within a recency window,
// produces a watch rule; a change event on a watched target produces a new
// assistant message back in the conversation that asked about it.
package autowatch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/models"
)

// previewLimit is how much of a changed snapshot's content the injected
// assistant message carries inline.
const previewLimit = 200

// TargetRef identifies the device or service an utterance resolved to.
type TargetRef struct {
	ID   string
	Type models.TargetType
	// ServiceType tunes poll cadence and threshold; empty falls back to the
	// device defaults.
	ServiceType models.ServiceType
	// Monitoring is the explicit user opt-in flag, which bypasses the
	// repeated-query requirement.
	Monitoring bool
	// PriorObservation is when the target was last seen BEFORE the current
	// turn's dispatch ran (zero if never). A scan that recently observed
	// the device counts as a prior query of it.
	PriorObservation time.Time
}

// RuleStore is the subset of the conversation store the integrator needs.
type RuleStore interface {
	CreateWatchRule(ctx context.Context, rule models.WatchRule) (models.WatchRule, error)
	ExtendWatchRule(ctx context.Context, id string, expiresAt time.Time) error
	WatchRulesForTarget(ctx context.Context, targetID string, targetType models.TargetType) ([]models.WatchRule, error)
	GetWatchRule(ctx context.Context, id string) (models.WatchRule, error)
}

// MessageAppender is the subset of the conversation store used to inject
// change-notification messages.
type MessageAppender interface {
	AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error)
}

// ConfigReader supplies the integrator's runtime tuning.
type ConfigReader interface {
	GetBool(key string, fallback bool) bool
	GetInt(key string, fallback int) int
	GetFloat(key string, fallback float64) float64
}

// Events is the subset of the event log the integrator appends to.
type Events interface {
	Append(eventType string, payload map[string]any) (uint64, error)
}

// queryRecord remembers one recent target query for the recency check.
type queryRecord struct {
	conversationID string
	at             time.Time
}

// Integrator makes the create/extend decision and the change-message
// injection.
type Integrator struct {
	rules    RuleStore
	messages MessageAppender
	config   ConfigReader
	events   Events

	exclusions []*regexp.Regexp

	mu     sync.Mutex
	recent map[string]queryRecord // target id+type -> last query
}

// New constructs an Integrator. exclusionPatterns are compiled once; a query
// whose text matches any of them never creates a watch (demo and test
// traffic, typically).
func New(rules RuleStore, messages MessageAppender, config ConfigReader, events Events, exclusionPatterns []string) (*Integrator, error) {
	compiled := make([]*regexp.Regexp, 0, len(exclusionPatterns))
	for _, p := range exclusionPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("autowatch: bad exclusion pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Integrator{
		rules:      rules,
		messages:   messages,
		config:     config,
		events:     events,
		exclusions: compiled,
		recent:     make(map[string]queryRecord),
	}, nil
}

// ConsiderQuery is called by the orchestrator after every dispatched turn
// that resolved to a concrete target. It creates a watch rule when the same
// target was queried within the recency window (or Monitoring is set),
// extending an existing rule's expiry instead of creating a duplicate.
// Returns the rule in effect, or nil when no watch applies.
func (i *Integrator) ConsiderQuery(ctx context.Context, conversationID string, c models.Classification, target TargetRef) (*models.WatchRule, error) {
	if !i.config.GetBool("watch.auto.enabled", true) {
		return nil, nil
	}
	if !models.AutoWatchEligible[c.Intent] {
		return nil, nil
	}
	for _, re := range i.exclusions {
		if re.MatchString(c.RawText) {
			return nil, nil
		}
	}

	now := time.Now()
	window := time.Duration(i.config.GetInt("watch.auto.time_window_ms", 3_600_000)) * time.Millisecond
	key := string(target.Type) + ":" + target.ID

	i.mu.Lock()
	prior, seen := i.recent[key]
	i.recent[key] = queryRecord{conversationID: conversationID, at: now}
	i.mu.Unlock()

	repeated := seen && now.Sub(prior.at) <= window
	if !repeated && !target.PriorObservation.IsZero() && now.Sub(target.PriorObservation) <= window {
		repeated = true
	}
	if !repeated && !target.Monitoring {
		return nil, nil
	}

	duration := time.Duration(i.config.GetInt("watch.default_duration_ms", 3_600_000)) * time.Millisecond
	expiresAt := now.Add(duration)

	existing, err := i.rules.WatchRulesForTarget(ctx, target.ID, target.Type)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		rule := existing[0]
		if err := i.rules.ExtendWatchRule(ctx, rule.ID, expiresAt); err != nil {
			return nil, err
		}
		rule.ExpiresAt = expiresAt
		slog.Info("autowatch: extended existing rule", "rule_id", rule.ID, "target_id", target.ID, "expires_at", expiresAt)
		return &rule, nil
	}

	rule := models.WatchRule{
		ConversationID:    conversationID,
		TargetID:          target.ID,
		TargetType:        target.Type,
		OriginatingIntent: c.Intent,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
		PollIntervalMS:    i.pollInterval(target.ServiceType),
		ChangeThreshold:   i.threshold(target.ServiceType),
		Active:            true,
	}
	created, err := i.rules.CreateWatchRule(ctx, rule)
	if err != nil {
		return nil, err
	}
	i.events.Append(eventlog.TypeWatchCreated, map[string]any{
		"rule_id":     created.ID,
		"target_id":   created.TargetID,
		"target_type": string(created.TargetType),
		"intent":      string(created.OriginatingIntent),
		"expires_at":  created.ExpiresAt,
	})
	slog.Info("autowatch: created rule", "rule_id", created.ID, "target_id", target.ID, "poll_interval_ms", created.PollIntervalMS)
	return &created, nil
}

func (i *Integrator) pollInterval(svcType models.ServiceType) int {
	fallback := i.config.GetInt("watch.default_poll_interval_ms", 60_000)
	if svcType == "" {
		return fallback
	}
	return i.config.GetInt("watch.service_interval."+string(svcType), fallback)
}

func (i *Integrator) threshold(svcType models.ServiceType) float64 {
	fallback := i.config.GetFloat("watch.default_threshold", 0.2)
	if svcType == "" {
		return fallback
	}
	return i.config.GetFloat("watch.service_threshold."+string(svcType), fallback)
}

// HandleEvent is subscribed to the event log; on change_detected it injects
// an assistant message into the conversation that created the rule. Other
// event types are ignored.
func (i *Integrator) HandleEvent(evt eventlog.Event) {
	if evt.Type != eventlog.TypeChangeDetected {
		return
	}
	ruleID, _ := evt.Payload["rule_id"].(string)
	if ruleID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rule, err := i.rules.GetWatchRule(ctx, ruleID)
	if err != nil {
		slog.Warn("autowatch: change event for unknown rule", "rule_id", ruleID, "error", err)
		return
	}

	summary, _ := evt.Payload["human_summary"].(string)
	recordID, _ := evt.Payload["change_record_id"].(string)
	preview, _ := evt.Payload["preview"].(string)
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	text := "Change detected: " + summary
	if preview != "" {
		text += "\n\n" + preview
	}

	msg := models.ConversationMessage{
		ConversationID: rule.ConversationID,
		Role:           models.RoleAssistant,
		Text:           text,
		Metadata: models.MessageMetadata{
			EventID:        evt.Sequence,
			ChangeRecordID: recordID,
			Intent:         rule.OriginatingIntent,
			QuickActions: []models.QuickAction{
				{ID: "watch-stop-" + rule.ID, Kind: models.ActionExecute, Label: "Stop watching", Query: "stop monitoring " + rule.TargetID},
				{ID: "watch-logs-" + rule.ID, Kind: models.ActionExecute, Label: "Show logs", Query: "show monitor logs " + rule.TargetID},
				{ID: "watch-open-" + rule.ID, Kind: models.ActionExecute, Label: "Open", Query: "show " + rule.TargetID},
			},
		},
	}
	if _, err := i.messages.AppendMessage(ctx, msg); err != nil {
		slog.Error("autowatch: failed to inject change message", "rule_id", ruleID, "error", err)
		return
	}
	i.events.Append(eventlog.TypeMessageAdded, map[string]any{
		"conversation_id": rule.ConversationID,
		"role":            string(models.RoleAssistant),
		"change_record_id": recordID,
	})
}

// IntentServiceType maps an originating intent to the service type whose
// tuned cadence and threshold apply to its watches.
func IntentServiceType(intent models.Intent) models.ServiceType {
	switch intent {
	case models.IntentCameraDescribe, models.IntentCameraHealth, models.IntentCameraSnapshot, models.IntentCameraONVIF:
		return "camera"
	case models.IntentMQTTRead:
		return models.ServiceMQTT
	case models.IntentRESTRead:
		return models.ServiceAPI
	default:
		if strings.HasPrefix(string(intent), "rtsp:") {
			return models.ServiceRTSP
		}
		if strings.HasPrefix(string(intent), "http:") {
			return models.ServiceHTTP
		}
		return ""
	}
}
