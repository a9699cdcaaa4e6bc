// Package orchestrator drives the full user-message lifecycle: append the
// user message, classify, dispatch under the active scope, render the
// result into the placeholder assistant message, consider an automatic
// watch, and attach follow-up quick actions. It also carries the
// programmatic turn API: Turn, CancelTurn, SetScope, and the watch
// list/stop/logs calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/netassist/core/pkg/autowatch"
	"github.com/netassist/core/pkg/dispatch"
	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/models"
	"github.com/netassist/core/pkg/quickaction"
)

// summarizeMinChars gates the TTS-friendly summary request: shorter bodies
// are already speakable as-is.
const summarizeMinChars = 500

// summaryMaxChars bounds the requested summary length.
const summaryMaxChars = 300

// Dispatcher is the subset of the dispatcher the orchestrator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, c models.Classification, scope models.Scope, pctx *models.PluginContext) (*models.Result, error)
}

// Router is the subset of the intent router the orchestrator needs.
type Router interface {
	Classify(ctx context.Context, u models.Utterance) models.Classification
}

// ConversationStore is the subset of the conversation store the
// orchestrator needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (models.Conversation, error)
	AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error)
	UpdateMessage(ctx context.Context, msg models.ConversationMessage) error
	GetWatchRule(ctx context.Context, id string) (models.WatchRule, error)
	ActiveWatchRules(ctx context.Context, now time.Time) ([]models.WatchRule, error)
}

// TargetResolver looks up the device/service an utterance's extracted
// entities refer to, for the auto-watch decision.
type TargetResolver interface {
	DeviceByIP(ctx context.Context, ip string) (models.Device, error)
	ServicesByDevice(ctx context.Context, deviceID string) ([]models.Service, error)
	ChangeRecordsForTarget(ctx context.Context, targetID string, targetType models.TargetType) ([]models.ChangeRecord, error)
}

// AutoWatcher is the subset of the auto-watch integrator the orchestrator
// needs.
type AutoWatcher interface {
	ConsiderQuery(ctx context.Context, conversationID string, c models.Classification, target autowatch.TargetRef) (*models.WatchRule, error)
}

// WatchStopper deactivates a rule on explicit user request.
type WatchStopper interface {
	StopRule(ctx context.Context, rule models.WatchRule)
}

// Events is the subset of the event log the orchestrator appends to.
type Events interface {
	Append(eventType string, payload map[string]any) (uint64, error)
}

// ConfigReader supplies the active scope and feature gates.
type ConfigReader interface {
	GetString(key, fallback string) string
	Set(key string, value any) error
}

// Presenter renders a plugin Result into a message body. The chat UI's
// real renderer lives outside the core; TextPresenter is the in-core
// default for headless callers.
type Presenter interface {
	Render(result *models.Result) (text string, blocks []models.ContentBlock)
}

// TextPresenter flattens every text block into the message body and passes
// the rest through as attachments.
type TextPresenter struct{}

func (TextPresenter) Render(result *models.Result) (string, []models.ContentBlock) {
	var parts []string
	for _, b := range result.Content {
		if b.Type == models.ContentText && b.Data != "" {
			parts = append(parts, b.Data)
		}
	}
	return strings.Join(parts, "\n\n"), result.Content
}

// turn tracks the in-flight turn so a newer utterance can cancel it.
type turn struct {
	cancel         context.CancelFunc
	conversationID string
	placeholderID  string
}

// Orchestrator owns the turn lifecycle.
type Orchestrator struct {
	router     Router
	dispatcher Dispatcher
	store      ConversationStore
	catalog    TargetResolver
	autoWatch  AutoWatcher
	stopper    WatchStopper
	events     Events
	config     ConfigReader
	presenter  Presenter
	llm        models.LlmClient // optional summarizer
	services   models.ServiceBundle
	privileged bool

	mu      sync.Mutex
	current *turn
}

// New constructs an Orchestrator. llm may be nil (no summaries); presenter
// nil falls back to TextPresenter.
func New(router Router, dispatcher Dispatcher, store ConversationStore, catalog TargetResolver,
	autoWatch AutoWatcher, stopper WatchStopper, events Events, config ConfigReader,
	presenter Presenter, llm models.LlmClient, services models.ServiceBundle, privileged bool) *Orchestrator {
	if presenter == nil {
		presenter = TextPresenter{}
	}
	return &Orchestrator{
		router:     router,
		dispatcher: dispatcher,
		store:      store,
		catalog:    catalog,
		autoWatch:  autoWatch,
		stopper:    stopper,
		events:     events,
		config:     config,
		presenter:  presenter,
		llm:        llm,
		services:   services,
		privileged: privileged,
	}
}

// Turn runs one full user-message lifecycle and returns the dispatched
// Result. A Turn issued while another is in flight cancels the prior one
// first; the prior turn's placeholder is finalized with a cancellation
// notice by its own goroutine when the dispatch unwinds.
func (o *Orchestrator) Turn(ctx context.Context, u models.Utterance, scopeOverride models.Scope) (*models.Result, error) {
	scope := o.activeScope(scopeOverride)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if u.ConversationID == "" {
		conv, err := o.store.CreateConversation(ctx)
		if err != nil {
			return nil, err
		}
		u.ConversationID = conv.ID
	}
	if u.ArrivalTime.IsZero() {
		u.ArrivalTime = time.Now()
	}

	userMsg, err := o.store.AppendMessage(ctx, models.ConversationMessage{
		ConversationID: u.ConversationID,
		Role:           models.RoleUser,
		Text:           u.Text,
		Timestamp:      u.ArrivalTime,
	})
	if err != nil {
		return nil, err
	}
	o.events.Append(eventlog.TypeMessageAdded, map[string]any{
		"conversation_id": u.ConversationID, "message_id": userMsg.ID, "role": string(models.RoleUser),
	})

	placeholder, err := o.store.AppendMessage(ctx, models.ConversationMessage{
		ConversationID: u.ConversationID,
		Role:           models.RoleAssistant,
		Metadata:       models.MessageMetadata{Loading: true},
	})
	if err != nil {
		return nil, err
	}
	o.events.Append(eventlog.TypeMessageAdded, map[string]any{
		"conversation_id": u.ConversationID, "message_id": placeholder.ID,
		"role": string(models.RoleAssistant), "loading": true,
	})

	o.beginTurn(cancel, u.ConversationID, placeholder.ID)
	defer o.endTurn(placeholder.ID)

	classification := o.router.Classify(turnCtx, u)
	placeholder.Metadata.Intent = classification.Intent
	o.updateMessage(ctx, placeholder)

	pctx := &models.PluginContext{RuntimePrivileged: o.privileged && u.RuntimePrivileged, Services: o.services}
	pctx.Services.Scope = scope

	// Captured before dispatch so the probe's own device upsert does not
	// count as the "prior query" the auto-watch recency check looks for.
	priorObservation := o.priorObservation(ctx, classification)

	result, dispatchErr := o.dispatcher.Dispatch(turnCtx, classification, scope, pctx)
	if dispatchErr != nil {
		o.finishWithError(ctx, turnCtx, placeholder, classification, dispatchErr)
		return result, dispatchErr
	}

	text, blocks := o.presenter.Render(result)
	placeholder.Text = text
	placeholder.Blocks = blocks
	placeholder.Metadata.Loading = false
	placeholder.Metadata.AssociatedURL = result.Metadata.SourceURL
	o.updateMessage(ctx, placeholder)

	o.maybeSummarize(turnCtx, u.ConversationID, text)

	target, resolved := o.resolveTarget(ctx, classification)
	target.PriorObservation = priorObservation
	if resolved && o.autoWatch != nil {
		if _, err := o.autoWatch.ConsiderQuery(ctx, u.ConversationID, classification, target); err != nil {
			slog.Warn("auto-watch consideration failed", "conversation_id", u.ConversationID, "error", err)
		}
	}

	placeholder.Metadata.QuickActions = quickaction.Resolve(quickaction.Input{
		Text:              text,
		Entities:          classification.Entities,
		Intent:            classification.Intent,
		OriginatingTarget: classification.Entities[models.EntityIP],
	})
	o.updateMessage(ctx, placeholder)

	return result, nil
}

// activeScope captures the scope at turn start; mid-turn scope changes do
// not affect an in-flight dispatch.
func (o *Orchestrator) activeScope(override models.Scope) models.Scope {
	if override != "" {
		return override
	}
	return models.Scope(o.config.GetString("scope.active", string(models.ScopeLocal)))
}

func (o *Orchestrator) beginTurn(cancel context.CancelFunc, conversationID, placeholderID string) {
	o.mu.Lock()
	prior := o.current
	o.current = &turn{cancel: cancel, conversationID: conversationID, placeholderID: placeholderID}
	o.mu.Unlock()
	if prior != nil {
		prior.cancel()
	}
}

func (o *Orchestrator) endTurn(placeholderID string) {
	o.mu.Lock()
	if o.current != nil && o.current.placeholderID == placeholderID {
		o.current = nil
	}
	o.mu.Unlock()
}

// CancelTurn cancels the in-flight turn, if any.
func (o *Orchestrator) CancelTurn() {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()
	if cur != nil {
		cur.cancel()
	}
}

// SetScope switches the process-wide active scope for subsequent turns.
func (o *Orchestrator) SetScope(scope models.Scope) error {
	if !models.ValidScopes[scope] {
		return models.NewValidationError("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	return o.config.Set("scope.active", string(scope))
}

// WatchList returns every currently active watch rule.
func (o *Orchestrator) WatchList(ctx context.Context) ([]models.WatchRule, error) {
	return o.store.ActiveWatchRules(ctx, time.Now())
}

// WatchStop deactivates a rule by id. The rule's change history is
// retained.
func (o *Orchestrator) WatchStop(ctx context.Context, id string) error {
	rule, err := o.store.GetWatchRule(ctx, id)
	if err != nil {
		return err
	}
	o.stopper.StopRule(ctx, rule)
	return nil
}

// WatchLogs returns the change records accumulated for a rule's target,
// newest first.
func (o *Orchestrator) WatchLogs(ctx context.Context, id string) ([]models.ChangeRecord, error) {
	rule, err := o.store.GetWatchRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.catalog.ChangeRecordsForTarget(ctx, rule.TargetID, rule.TargetType)
}

// finishWithError folds any stage failure into a user-visible placeholder
// update plus an error_occurred event. A turn canceled by a newer utterance
// gets a cancellation notice instead of an error.
func (o *Orchestrator) finishWithError(ctx context.Context, turnCtx context.Context, placeholder models.ConversationMessage, c models.Classification, err error) {
	placeholder.Metadata.Loading = false

	switch {
	case errors.Is(turnCtx.Err(), context.Canceled) && ctx.Err() == nil:
		placeholder.Text = "Przerwano — nowe polecenie zastąpiło to zapytanie."
	case errors.Is(err, dispatch.ErrScopeRejected):
		placeholder.Text = fmt.Sprintf("Bieżący zakres nie pozwala na tę operację (%s).", c.Intent)
		placeholder.Metadata.Error = err.Error()
	default:
		placeholder.Text = userVisibleError(err)
		placeholder.Metadata.Error = err.Error()
	}
	o.updateMessage(ctx, placeholder)

	o.events.Append(eventlog.TypeErrorOccurred, map[string]any{
		"conversation_id": placeholder.ConversationID,
		"message_id":      placeholder.ID,
		"intent":          string(c.Intent),
		"error":           err.Error(),
	})
}

// userVisibleError maps the error taxonomy to a short human summary with
// the class name; internals stay in the logs.
func userVisibleError(err error) string {
	var execErr *models.ExecutionError
	if errors.As(err, &execErr) {
		switch execErr.Class {
		case models.ClassRuntimeRequired:
			return "RuntimeRequired: ta operacja wymaga uprzywilejowanego środowiska (pełnej aplikacji, nie przeglądarki)."
		case models.ClassTimeout:
			return "Timeout: operacja przekroczyła limit czasu."
		case models.ClassDuplicateInFlight:
			return "DuplicateInFlight: identyczne zapytanie jest już w toku."
		case models.ClassUpstreamError:
			return "UpstreamError: usługa zewnętrzna zwróciła błąd — " + execErr.Detail
		default:
			return string(execErr.Class) + ": " + execErr.Detail
		}
	}
	return "Wystąpił błąd podczas przetwarzania polecenia."
}

func (o *Orchestrator) updateMessage(ctx context.Context, msg models.ConversationMessage) {
	if err := o.store.UpdateMessage(ctx, msg); err != nil {
		slog.Error("failed to update message", "message_id", msg.ID, "error", err)
		return
	}
	o.events.Append(eventlog.TypeMessageUpdated, map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"loading":         msg.Metadata.Loading,
	})
}

// maybeSummarize requests a TTS-friendly summary for bulk text results when
// an LLM is wired.
func (o *Orchestrator) maybeSummarize(ctx context.Context, conversationID, text string) {
	if o.llm == nil || len(text) < summarizeMinChars {
		return
	}
	summary, err := o.llm.Summarize(ctx, text, summaryMaxChars)
	if err != nil {
		slog.Warn("summary generation failed", "conversation_id", conversationID, "error", err)
		return
	}
	o.events.Append(eventlog.TypeSummaryGenerated, map[string]any{
		"conversation_id": conversationID, "summary": summary,
	})
}

// priorObservation returns when the classification's target device was last
// seen before this turn's dispatch, or zero if it was never observed.
func (o *Orchestrator) priorObservation(ctx context.Context, c models.Classification) time.Time {
	ip, ok := c.Entities[models.EntityIP]
	if !ok || o.catalog == nil {
		return time.Time{}
	}
	dev, err := o.catalog.DeviceByIP(ctx, ip)
	if err != nil {
		return time.Time{}
	}
	return dev.LastSeen
}

// resolveTarget maps the classification's extracted IP to a persisted
// device (and its most watch-relevant service) for the auto-watch decision.
// Unknown targets resolve to nothing: a watch needs a device observed by a
// prior scan or probe.
func (o *Orchestrator) resolveTarget(ctx context.Context, c models.Classification) (autowatch.TargetRef, bool) {
	ip, ok := c.Entities[models.EntityIP]
	if !ok || o.catalog == nil {
		return autowatch.TargetRef{}, false
	}
	dev, err := o.catalog.DeviceByIP(ctx, ip)
	if err != nil {
		return autowatch.TargetRef{}, false
	}

	monitoring := strings.HasPrefix(string(c.Intent), "monitor:")
	svcType := autowatch.IntentServiceType(c.Intent)

	services, err := o.catalog.ServicesByDevice(ctx, dev.ID)
	if err == nil && len(services) > 0 {
		chosen := services[0]
		for _, svc := range services {
			if string(svc.Type) == string(svcType) || (svcType == "camera" && svc.Type == models.ServiceONVIF) {
				chosen = svc
				break
			}
		}
		if svcType == "" {
			svcType = chosen.Type
		}
		return autowatch.TargetRef{ID: chosen.ID, Type: models.TargetService, ServiceType: svcType, Monitoring: monitoring}, true
	}
	return autowatch.TargetRef{ID: dev.ID, Type: models.TargetDevice, ServiceType: svcType, Monitoring: monitoring}, true
}
