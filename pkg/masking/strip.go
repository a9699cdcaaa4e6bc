// Package masking strips volatile sections (timestamps, nonces, session
// tokens) from a snapshot's canonical form before ChangeDetector diffs it,
// so a service that merely re-stamps its own response clock does not read
// as changed content.
//
// Rules are named, pre-compiled regex replacements resolved once and
// applied in sequence.
package masking

import "regexp"

// StripRule is one named, pre-compiled volatile-section rule.
type StripRule struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// BuiltinStripRules are the default volatile-section patterns. A deployment
// that needs additional rules constructs its own []StripRule and passes it
// to NewService instead of BuiltinStripRules().
func BuiltinStripRules() []StripRule {
	return []StripRule{
		{
			Name:        "iso8601_timestamp",
			Regex:       regexp.MustCompile(`(?i)\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`),
			Replacement: "<ts>",
		},
		{
			Name:        "http_date",
			Regex:       regexp.MustCompile(`(?i)\b(mon|tue|wed|thu|fri|sat|sun),\s+\d{1,2}\s+\w+\s+\d{4}\s+\d{2}:\d{2}:\d{2}\s+gmt\b`),
			Replacement: "<ts>",
		},
		{
			Name:        "unix_epoch_ms",
			Regex:       regexp.MustCompile(`\b1[5-9]\d{11}\b`),
			Replacement: "<ts>",
		},
		{
			Name:        "nonce_field",
			Regex:       regexp.MustCompile(`(?i)"?(nonce|csrf[_-]?token|request[_-]?id|x-request-id)"?\s*[:=]\s*"?[a-zA-Z0-9_\-./+]{8,}"?`),
			Replacement: "$1=<nonce>",
		},
		{
			Name:        "session_token",
			Regex:       regexp.MustCompile(`(?i)"?(session[_-]?id|sessionid|set-cookie|authorization|bearer)"?\s*[:=]\s*"?[a-zA-Z0-9_\-./+=]{8,}"?`),
			Replacement: "$1=<token>",
		},
		{
			Name:        "etag",
			Regex:       regexp.MustCompile(`(?i)"?etag"?\s*[:=]\s*"[^"]*"`),
			Replacement: `etag="<etag>"`,
		},
	}
}

// Service applies a fixed, ordered set of strip rules to canonicalized
// content before it is hashed or shingled for comparison.
type Service struct {
	rules []StripRule
}

// NewService constructs a Service over rules. Passing nil uses
// BuiltinStripRules().
func NewService(rules []StripRule) *Service {
	if rules == nil {
		rules = BuiltinStripRules()
	}
	return &Service{rules: rules}
}

// Strip applies every rule, in order, to data and returns the result.
func (s *Service) Strip(data string) string {
	out := data
	for _, rule := range s.rules {
		out = rule.Regex.ReplaceAllString(out, rule.Replacement)
	}
	return out
}
