// Package models holds the shared domain types passed between every
// component of the dispatch and reactive-monitoring core: utterances,
// intents, scopes, devices, snapshots, conversation messages, watch rules,
// and the plugin contract itself.
package models

import "time"

// Intent is a closed tag classifying a user utterance into a routable action.
type Intent string

// Recognized intent tags. Unrecognized utterances resolve to IntentChatFallback.
const (
	IntentNetworkPing     Intent = "network:ping"
	IntentNetworkPortScan Intent = "network:port-scan"
	IntentNetworkARP      Intent = "network:arp"
	IntentNetworkScan     Intent = "network:scan"

	IntentCameraONVIF    Intent = "camera:onvif"
	IntentCameraSnapshot Intent = "camera:snapshot"
	IntentCameraPTZ      Intent = "camera:ptz"
	IntentCameraHealth   Intent = "camera:health"
	IntentCameraDescribe Intent = "camera:describe"

	IntentBrowseURL    Intent = "browse:url"
	IntentBrowseSearch Intent = "browse:search"

	IntentSSHExec     Intent = "ssh:exec"
	IntentSSHText2Cmd Intent = "ssh:text2cmd"

	IntentMQTTRead Intent = "mqtt:read"
	IntentMQTTSend Intent = "mqtt:send"

	IntentRESTRead  Intent = "rest:read"
	IntentRESTSend  Intent = "rest:send"
	IntentWSOpen    Intent = "ws:open"
	IntentWSSend    Intent = "ws:send"
	IntentSSEOpen   Intent = "sse:open"
	IntentGraphQL   Intent = "graphql:query"

	IntentMonitorStart  Intent = "monitor:start"
	IntentMonitorStop   Intent = "monitor:stop"
	IntentMonitorList   Intent = "monitor:list"
	IntentMonitorLogs   Intent = "monitor:logs"
	IntentMonitorConfig Intent = "monitor:config"

	IntentMarketplaceBrowse    Intent = "marketplace:browse"
	IntentMarketplaceInstall   Intent = "marketplace:install"
	IntentMarketplaceUninstall Intent = "marketplace:uninstall"
	IntentMarketplaceSearch    Intent = "marketplace:search"

	IntentVoiceCommand Intent = "voice:command"

	IntentLogsDownload Intent = "logs:download"
	IntentLogsClear    Intent = "logs:clear"
	IntentLogsLevel    Intent = "logs:level"

	IntentChatAsk      Intent = "chat:ask"
	IntentChatFallback Intent = "chat:fallback"
)

// AutoWatchEligible lists the intents AutoWatchIntegrator considers for
// watch-rule creation. Declared here so both the router's
// confidence policy and the integrator agree on the same closed set.
var AutoWatchEligible = map[Intent]bool{
	IntentCameraDescribe: true,
	"device:status":      true,
	"service:describe":   true,
	"http:describe":      true,
	"rtsp:describe":      true,
	IntentMQTTRead:       true,
	IntentRESTRead:       true,
	"api:describe":       true,
}

// EntityKey names a well-known entry in an Entities map.
type EntityKey string

const (
	EntityIP        EntityKey = "ip"
	EntityMAC       EntityKey = "mac"
	EntityURL       EntityKey = "url"
	EntityPort      EntityKey = "port"
	EntitySubnet    EntityKey = "subnet"
	EntityDuration  EntityKey = "duration"
	EntityThreshold EntityKey = "threshold"
	EntityPercent   EntityKey = "percent"
	EntityText      EntityKey = "text"
)

// Entities is the extracted-entity bag attached to a Classification.
type Entities map[EntityKey]string

// Source identifies where an Utterance originated.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// Utterance is the raw user input handed to the IntentRouter.
type Utterance struct {
	Text              string
	ArrivalTime       time.Time
	ConversationID    string
	Source            Source
	RuntimePrivileged bool // whether a privileged (non-browser) runtime is available
}

// Classification is the IntentRouter's output: {intent, entities, confidence}.
type Classification struct {
	Intent     Intent
	Confidence float64
	Entities   Entities
	RawText    string
}
