// Package quickaction derives follow-up action buttons from an assistant
// message: its text, the entities the router extracted, and the intent that
// produced it. Resolution is pure — no I/O, no clock — so the same message
// always yields the same actions.
package quickaction

import (
	"fmt"
	"strings"

	"github.com/netassist/core/pkg/models"
)

// maxActions caps how many buttons a single message carries.
const maxActions = 5

// maxPerCategory caps how many buttons one resolution rule may contribute.
const maxPerCategory = 2

// Input is everything the resolver looks at.
type Input struct {
	Text     string
	Entities models.Entities
	Intent   models.Intent
	// OriginatingTarget is the primary entity the message was about; actions
	// that would merely repeat it with no new information are dropped.
	OriginatingTarget string
}

// Resolve computes up to maxActions follow-up actions for a message. Rules
// are evaluated in a fixed order; within a rule the first matches win, at
// most maxPerCategory each; duplicates by action id are dropped.
func Resolve(in Input) []models.QuickAction {
	lower := strings.ToLower(in.Text)
	ip := in.Entities[models.EntityIP]
	url := in.Entities[models.EntityURL]

	var candidates []models.QuickAction
	add := func(rule []models.QuickAction) {
		if len(rule) > maxPerCategory {
			rule = rule[:maxPerCategory]
		}
		candidates = append(candidates, rule...)
	}

	switch {
	case isCameraContext(lower, in.Intent) && ip != "":
		add([]models.QuickAction{
			execute("camera-live-"+ip, "Podgląd na żywo", "pokaż kamerę "+ip),
			execute("camera-snapshot-"+ip, "Zdjęcie", "zrób zdjęcie z "+ip),
		})
		candidates = append(candidates, execute("monitor-"+ip, "Monitoruj", "monitoruj "+ip))

	case in.Intent == models.IntentNetworkScan && ip != "":
		add([]models.QuickAction{
			execute("ping-"+ip, "Ping "+ip, "ping "+ip),
			execute("portscan-"+ip, "Skanuj porty "+ip, "skanuj porty "+ip),
		})
		if subnet := in.Entities[models.EntitySubnet]; subnet != "" {
			candidates = append(candidates, execute("rescan-"+subnet, "Skanuj ponownie "+subnet, "skanuj sieć "+subnet))
		}

	case in.Intent == models.IntentNetworkPing && ip != "":
		add([]models.QuickAction{
			execute("portscan-"+ip, "Skanuj porty "+ip, "skanuj porty "+ip),
			prefill("ssh-"+ip, "SSH "+ip, "ssh "+ip+" "),
		})

	case in.Intent == models.IntentNetworkPortScan && ip != "":
		if mentionsPort(lower, 22) {
			candidates = append(candidates, prefill("ssh-"+ip, "SSH "+ip, "ssh "+ip+" "))
		}
		if mentionsPort(lower, 80) || mentionsPort(lower, 443) {
			candidates = append(candidates, execute("browse-"+ip, "Otwórz http://"+ip, "http://"+ip))
		}
		candidates = append(candidates, execute("monitor-"+ip, "Monitoruj "+ip, "monitoruj "+ip))

	case (in.Intent == models.IntentBrowseURL || in.Intent == models.IntentBrowseSearch) && url != "":
		add([]models.QuickAction{
			execute("refresh-"+url, "Odśwież", url),
			prefill("search-more", "Szukaj dalej", "? "),
		})

	case in.Intent == models.IntentSSHExec && ip != "":
		add([]models.QuickAction{
			execute("ssh-df-"+ip, "Zajętość dysku", "ssh "+ip+" df -h"),
			execute("ssh-top-"+ip, "Procesy", "ssh "+ip+" top -b -n 1"),
		})

	case in.Intent == models.IntentMonitorStart || in.Intent == models.IntentMonitorList:
		add([]models.QuickAction{
			execute("monitor-logs", "Pokaż logi", "pokaż logi monitora"),
			execute("monitor-list", "Aktywne monitory", "lista monitorów"),
		})

	case isWelcome(lower):
		add([]models.QuickAction{
			execute("starter-scan", "Skanuj sieć", "skanuj sieć"),
			execute("starter-help", "Co potrafisz?", "pomoc"),
		})
	}

	// Fallback: a bare IP or URL with no contextual rule still gets its
	// cheapest follow-up.
	if len(candidates) == 0 {
		if ip != "" {
			candidates = append(candidates, execute("ping-"+ip, "Ping "+ip, "ping "+ip))
		}
		if url != "" {
			candidates = append(candidates, execute("browse-"+url, "Otwórz "+url, url))
		}
	}

	return dedupe(candidates, in.OriginatingTarget)
}

func execute(id, label, query string) models.QuickAction {
	return models.QuickAction{ID: id, Kind: models.ActionExecute, Label: label, Query: query}
}

func prefill(id, label, query string) models.QuickAction {
	return models.QuickAction{ID: id, Kind: models.ActionPrefill, Label: label, Query: query}
}

func isCameraContext(lower string, intent models.Intent) bool {
	if strings.HasPrefix(string(intent), "camera:") {
		return true
	}
	return strings.Contains(lower, "kamera") || strings.Contains(lower, "camera")
}

func isWelcome(lower string) bool {
	return strings.Contains(lower, "witaj") || strings.Contains(lower, "welcome") ||
		strings.Contains(lower, "pomoc") || strings.Contains(lower, "help")
}

func mentionsPort(lower string, port int) bool {
	return strings.Contains(lower, fmt.Sprintf("%d", port))
}

// dedupe drops repeated action ids and actions whose query merely restates
// the message's originating target with no new verb.
func dedupe(actions []models.QuickAction, originatingTarget string) []models.QuickAction {
	seen := make(map[string]bool, len(actions))
	out := make([]models.QuickAction, 0, maxActions)
	for _, a := range actions {
		if seen[a.ID] {
			continue
		}
		if originatingTarget != "" && a.Query == originatingTarget {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
		if len(out) == maxActions {
			break
		}
	}
	return out
}
