package pipeline

import "strings"

// ClientType classifies the inbound User-Agent, per spec.md §4.7 and
// original_source/server/client_detector.rs.
type ClientType string

const (
	ClientCursor    ClientType = "cursor"
	ClientClaudeCode ClientType = "claude_code"
	ClientCodex     ClientType = "codex"
	ClientWindsurf  ClientType = "windsurf"
	ClientKiro      ClientType = "kiro"
	ClientOther     ClientType = "other"
)

// detectionRule is a substring match against a lower-cased User-Agent.
type detectionRule struct {
	needle string
	client ClientType
}

var detectionTable = []detectionRule{
	{"cursor", ClientCursor},
	{"claude-code", ClientClaudeCode},
	{"claudecode", ClientClaudeCode},
	{"codex", ClientCodex},
	{"windsurf", ClientWindsurf},
	{"kiro", ClientKiro},
}

// DetectClient classifies userAgent into one of the known client types,
// falling back to ClientOther. It is a pure string-matching function, safe
// to call with an empty string.
func DetectClient(userAgent string) ClientType {
	lower := strings.ToLower(userAgent)
	for _, rule := range detectionTable {
		if strings.Contains(lower, rule.needle) {
			return rule.client
		}
	}
	return ClientOther
}
