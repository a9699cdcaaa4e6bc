// Package intent blends a closed, ordered rule table with an optional
// classifier stage and deterministic entity extraction.
package intent

import (
	"strings"

	"github.com/netassist/core/pkg/models"
)

// matchFunc is a cheap, side-effect-free predicate over the utterance text
// and its already-extracted entities. Kept separate from Classification so
// a rule can condition on "contains an IP + keyword" without re-parsing.
type matchFunc func(text string, lower string, ent models.Entities) bool

// Rule is one (intent, pattern, confidence) tuple of the stage-1 rule
// table. A pattern is a literal phrase, a regex (via matchFunc closures
// over pre-compiled patterns in entities.go), or a small predicate.
type Rule struct {
	Intent     models.Intent
	Match      matchFunc
	Confidence float64
}

func containsAny(lower string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func hasIP(ent models.Entities) bool {
	_, ok := ent[models.EntityIP]
	return ok
}

func hasURL(ent models.Entities) bool {
	_, ok := ent[models.EntityURL]
	return ok
}

func hasSearchText(ent models.Entities) bool {
	_, ok := ent[models.EntityText]
	return ok
}

// pingKeywords and their translations.
var pingKeywords = []string{"ping", "sprawdź", "sprawdz", "reachable", "dostępny", "dostepny"}
var portScanKeywords = []string{"port scan", "scan port", "skanuj port", "open ports", "porty"}
var arpKeywords = []string{"arp", "mac address", "kto jest"}
var scanNetworkKeywords = []string{"scan network", "skanuj sieć", "skanuj siec", "discover", "network scan", "co jest w sieci"}
var cameraKeywords = []string{"camera", "kamera", "cctv", "onvif"}
var sshKeywords = []string{"ssh", "exec", "run command", "wykonaj"}
var mqttKeywords = []string{"mqtt", "topic", "broker"}
var restKeywords = []string{"rest", "api", "endpoint"}
var wsKeywords = []string{"websocket", "ws://", "wss://"}
var sseKeywords = []string{"sse", "server-sent", "event stream"}
var graphqlKeywords = []string{"graphql", "query {", "mutation {"}
var monitorKeywords = []string{"monitor", "watch", "obserwuj", "śledź", "sledz"}
var marketplaceKeywords = []string{"marketplace", "plugin", "install", "zainstaluj", "uninstall"}
var voiceKeywords = []string{"voice", "głos", "glos", "mów", "mow"}
var logsKeywords = []string{"logs", "log level", "logi"}

// BuiltinRules is the closed, ordered stage-1 rule table. The
// first matching rule wins; declaration order breaks ties at equal
// priority, so more specific rules are listed ahead of broader ones (e.g.
// camera:describe before the generic browse:url catch-all).
func BuiltinRules() []Rule {
	return []Rule{
		{Intent: models.IntentCameraSnapshot, Confidence: 0.9, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, cameraKeywords...) && containsAny(lower, "snapshot", "zdjęcie", "zdjecie", "still")
		}},
		{Intent: models.IntentCameraPTZ, Confidence: 0.9, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, cameraKeywords...) && containsAny(lower, "ptz", "pan", "tilt", "zoom", "obróć", "obroc")
		}},
		{Intent: models.IntentCameraHealth, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, cameraKeywords...) && containsAny(lower, "health", "status", "stan")
		}},
		{Intent: models.IntentCameraONVIF, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return strings.Contains(lower, "onvif")
		}},
		{Intent: models.IntentCameraDescribe, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, cameraKeywords...) && (hasIP(ent) || containsAny(lower, "co widać", "co widac", "describe", "co to jest"))
		}},

		{Intent: models.IntentNetworkPortScan, Confidence: 0.9, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, portScanKeywords...) && hasIP(ent)
		}},
		{Intent: models.IntentNetworkARP, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, arpKeywords...)
		}},
		{Intent: models.IntentNetworkScan, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, scanNetworkKeywords...)
		}},
		{Intent: models.IntentNetworkPing, Confidence: 0.9, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, pingKeywords...) && hasIP(ent)
		}},

		{Intent: models.IntentSSHText2Cmd, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return strings.Contains(lower, "ssh") && containsAny(lower, "zrób", "zrob", "do ", "check if")
		}},
		{Intent: models.IntentSSHExec, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, sshKeywords...) && hasIP(ent)
		}},

		{Intent: models.IntentMQTTSend, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, mqttKeywords...) && containsAny(lower, "publish", "send", "wyślij", "wyslij")
		}},
		{Intent: models.IntentMQTTRead, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, mqttKeywords...)
		}},

		{Intent: models.IntentGraphQL, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, graphqlKeywords...)
		}},
		{Intent: models.IntentSSEOpen, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, sseKeywords...)
		}},
		{Intent: models.IntentWSSend, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, wsKeywords...) && containsAny(lower, "send", "wyślij", "wyslij")
		}},
		{Intent: models.IntentWSOpen, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, wsKeywords...)
		}},
		{Intent: models.IntentRESTSend, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, restKeywords...) && containsAny(lower, "post", "put", "send", "wyślij", "wyslij")
		}},
		{Intent: models.IntentRESTRead, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, restKeywords...) && hasURL(ent)
		}},

		{Intent: models.IntentMonitorStop, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, monitorKeywords...) && containsAny(lower, "stop", "zatrzymaj", "przestań", "przestan")
		}},
		{Intent: models.IntentMonitorList, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, monitorKeywords...) && containsAny(lower, "list", "lista", "pokaż", "pokaz")
		}},
		{Intent: models.IntentMonitorLogs, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, monitorKeywords...) && containsAny(lower, logsKeywords...)
		}},
		{Intent: models.IntentMonitorConfig, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, monitorKeywords...) && containsAny(lower, "config", "threshold", "interval")
		}},
		{Intent: models.IntentMonitorStart, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, monitorKeywords...)
		}},

		{Intent: models.IntentMarketplaceInstall, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, "install", "zainstaluj")
		}},
		{Intent: models.IntentMarketplaceUninstall, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, "uninstall", "odinstaluj")
		}},
		{Intent: models.IntentMarketplaceSearch, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return strings.Contains(lower, "marketplace") && containsAny(lower, "search", "szukaj", "find")
		}},
		{Intent: models.IntentMarketplaceBrowse, Confidence: 0.75, Match: func(_, lower string, ent models.Entities) bool {
			return strings.Contains(lower, "marketplace")
		}},

		{Intent: models.IntentLogsClear, Confidence: 0.85, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, logsKeywords...) && containsAny(lower, "clear", "wyczyść", "wyczysc")
		}},
		{Intent: models.IntentLogsLevel, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, logsKeywords...) && containsAny(lower, "level", "poziom", "debug", "verbose")
		}},
		{Intent: models.IntentLogsDownload, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, logsKeywords...) && containsAny(lower, "download", "export", "pobierz")
		}},

		{Intent: models.IntentVoiceCommand, Confidence: 0.7, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, voiceKeywords...)
		}},

		{Intent: models.IntentBrowseSearch, Confidence: 0.8, Match: func(_, lower string, ent models.Entities) bool {
			return hasSearchText(ent) && !hasURL(ent)
		}},
		{Intent: models.IntentBrowseURL, Confidence: 0.9, Match: func(_, lower string, ent models.Entities) bool {
			return hasURL(ent)
		}},

		{Intent: models.IntentChatAsk, Confidence: 0.6, Match: func(_, lower string, ent models.Entities) bool {
			return containsAny(lower, "what", "why", "how", "co to", "dlaczego", "jak", "?")
		}},
	}
}
