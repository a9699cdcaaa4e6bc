package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/netassist/core/pkg/models"
)

// classifierTimeout bounds stage 2.
const classifierTimeout = 2 * time.Second

// stage1ConfidenceGate is the confidence below which stage 2 is consulted
// when enabled.
const stage1ConfidenceGate = 0.8

// ConfigReader is the subset of ConfigStore the router needs to gate
// stage 2.
type ConfigReader interface {
	GetBool(key string, fallback bool) bool
}

// Classifier is the optional stage 2 collaborator. A concrete
// implementation (an external LLM-backed service) is out of scope for this
// core; Router only depends on this interface.
type Classifier interface {
	Classify(ctx context.Context, text string, intents []models.Intent, hints map[string][]string) (models.Classification, error)
}

// PluginHintSource supplies each plugin's declared classifier keyword
// hints handed to stage 2.
type PluginHintSource interface {
	Hints() map[string][]string
}

// allIntents is the closed set of recognized intent tags handed to the
// classifier.
var allIntents = []models.Intent{
	models.IntentNetworkPing, models.IntentNetworkPortScan, models.IntentNetworkARP, models.IntentNetworkScan,
	models.IntentCameraONVIF, models.IntentCameraSnapshot, models.IntentCameraPTZ, models.IntentCameraHealth, models.IntentCameraDescribe,
	models.IntentBrowseURL, models.IntentBrowseSearch,
	models.IntentSSHExec, models.IntentSSHText2Cmd,
	models.IntentMQTTRead, models.IntentMQTTSend,
	models.IntentRESTRead, models.IntentRESTSend, models.IntentWSOpen, models.IntentWSSend, models.IntentSSEOpen, models.IntentGraphQL,
	models.IntentMonitorStart, models.IntentMonitorStop, models.IntentMonitorList, models.IntentMonitorLogs, models.IntentMonitorConfig,
	models.IntentMarketplaceBrowse, models.IntentMarketplaceInstall, models.IntentMarketplaceUninstall, models.IntentMarketplaceSearch,
	models.IntentVoiceCommand,
	models.IntentLogsDownload, models.IntentLogsClear, models.IntentLogsLevel,
	models.IntentChatAsk, models.IntentChatFallback,
}

// Router classifies utterances into intents.
type Router struct {
	rules      []Rule
	config     ConfigReader
	classifier Classifier // nil disables stage 2 entirely
	hints      map[string][]string
}

// New constructs a Router over the builtin rule table. classifier may be nil
// (stage 2 unavailable regardless of the config flag).
func New(config ConfigReader, classifier Classifier, hints map[string][]string) *Router {
	return &Router{
		rules:      BuiltinRules(),
		config:     config,
		classifier: classifier,
		hints:      hints,
	}
}

// Classify runs the two-stage classification over u.Text and returns
// {intent, confidence, entities}. Entity extraction always runs regardless
// of which stage produced the intent; output is deterministic for a fixed
// configuration snapshot.
func (r *Router) Classify(ctx context.Context, u models.Utterance) models.Classification {
	entities := ExtractEntities(u.Text)
	lower := strings.ToLower(u.Text)

	stage1 := r.matchStage1(u.Text, lower, entities)

	useClassifier := r.classifier != nil && r.config != nil && r.config.GetBool("llm.use_classifier", false)
	if !useClassifier {
		return finalize(stage1, entities, u.Text)
	}
	if stage1.Intent != "" && stage1.Confidence >= stage1ConfidenceGate {
		return finalize(stage1, entities, u.Text)
	}

	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	result, err := r.classifier.Classify(cctx, u.Text, allIntents, r.hints)
	if err != nil {
		slog.Warn("intent classifier stage failed, falling back to rule stage", "error", err)
		return finalize(stage1, entities, u.Text)
	}
	if result.Entities == nil {
		result.Entities = entities
	} else {
		for k, v := range entities {
			if _, ok := result.Entities[k]; !ok {
				result.Entities[k] = v
			}
		}
	}
	result.RawText = u.Text
	return result
}

func (r *Router) matchStage1(text, lower string, entities models.Entities) models.Classification {
	for _, rule := range r.rules {
		if rule.Match(text, lower, entities) {
			return models.Classification{Intent: rule.Intent, Confidence: rule.Confidence}
		}
	}
	return models.Classification{}
}

// finalize applies the chat:fallback default when stage 1 found no match.
func finalize(c models.Classification, entities models.Entities, rawText string) models.Classification {
	if c.Intent == "" {
		c.Intent = models.IntentChatFallback
		c.Confidence = 0.5
	}
	c.Entities = entities
	c.RawText = rawText
	return c
}

// ExtractEntities runs every entity extractor over text.
func ExtractEntities(text string) models.Entities {
	ent := models.Entities{}

	if ip, ok := extractIP(text); ok {
		ent[models.EntityIP] = ip
		if subnet, ok := extractSubnet(ip); ok {
			ent[models.EntitySubnet] = subnet
		}
	}
	if mac, ok := extractMAC(text); ok {
		ent[models.EntityMAC] = mac
	}
	url, search, hasURL, hasSearch := extractURL(text)
	if hasURL {
		ent[models.EntityURL] = url
	}
	if hasSearch {
		ent[models.EntityText] = search
	}
	if port, ok := extractPort(text); ok {
		ent[models.EntityPort] = port
	}
	if !hasSearch {
		if verbText, ok := extractTextAfterVerb(text); ok {
			ent[models.EntityText] = verbText
		}
	}
	if num, ok := extractNumeric(text); ok {
		switch {
		case strings.ContainsAny(num, "%") || strings.Contains(strings.ToLower(num), "percent"):
			ent[models.EntityPercent] = num
		case strings.ContainsAny(num, "smh"):
			ent[models.EntityDuration] = num
		default:
			ent[models.EntityThreshold] = num
		}
	}
	return ent
}
