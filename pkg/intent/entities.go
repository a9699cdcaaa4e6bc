package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ipPattern     = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}\b`)
	macPattern    = regexp.MustCompile(`(?i)\b([0-9a-f]{2}:){5}[0-9a-f]{2}\b`)
	urlPattern    = regexp.MustCompile(`(?i)https?://\S+`)
	portNearKw    = regexp.MustCompile(`(?i)\bport[s]?\D{0,5}(\d{1,5})\b|\b(\d{1,5})\D{0,5}port[s]?\b`)
	numericSuffix = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ms|s|sec|m|min|h|hr|%|percent)?`)
	verbSplit     = regexp.MustCompile(`(?i)^(pokaż|pokaz|show|skanuj|scan|sprawdź|sprawdz|check|otwórz|otworz|open)\s+(.+)$`)
)

// loopback/broadcast-ish suffixes that never name a probe target.
var discardedIPSuffixes = []string{".0", ".255"}

// extractIP returns the first IP token that is not a .0/.255-suffixed or
// loopback address.
func extractIP(text string) (string, bool) {
	for _, m := range ipPattern.FindAllString(text, -1) {
		if m == "127.0.0.1" {
			continue
		}
		discard := false
		for _, suf := range discardedIPSuffixes {
			if strings.HasSuffix(m, suf) {
				discard = true
				break
			}
		}
		if discard {
			continue
		}
		return m, true
	}
	return "", false
}

// extractSubnet derives a /24 prefix from ip when ip has the X.Y.Z.W shape.
func extractSubnet(ip string) (string, bool) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", false
	}
	return strings.Join(parts[:3], ".") + ".0/24", true
}

func extractMAC(text string) (string, bool) {
	m := macPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}

// extractURL returns the first http(s):// token, and — when a leading "?" is
// present in the text — the search query text following it.
func extractURL(text string) (url string, searchQuery string, hasURL, hasSearch bool) {
	if idx := strings.Index(text, "?"); idx >= 0 {
		query := strings.TrimSpace(text[idx+1:])
		if query != "" {
			searchQuery = query
			hasSearch = true
		}
	}
	m := urlPattern.FindString(text)
	if m != "" {
		url = strings.TrimRight(m, ".,;)")
		hasURL = true
	}
	return
}

func extractPort(text string) (string, bool) {
	m := portNearKw.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil && n >= 1 && n <= 65535 {
			return g, true
		}
	}
	return "", false
}

// extractTextAfterVerb returns the free-text substring following a
// recognized verb.
func extractTextAfterVerb(text string) (string, bool) {
	m := verbSplit.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[2], true
}

// extractNumeric parses the first numeric token with an optional unit
// suffix, used for duration/threshold/percent entities.
func extractNumeric(text string) (string, bool) {
	m := numericSuffix.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	if m[2] != "" {
		return m[1] + m[2], true
	}
	return m[1], true
}
