package flow

import (
	"fmt"
	"strings"
)

// ExportCURL serializes a flow's resolved request into a replayable curl
// command, text generation only (no network calls), per
// original_source/flow_monitor/{exporter,code_exporter}.rs and
// SPEC_FULL.md §4.6.
func ExportCURL(f *LLMFlow) string {
	var sb strings.Builder
	sb.WriteString("curl -sS")
	sb.WriteString(" -H 'content-type: application/json'")
	sb.WriteString(fmt.Sprintf(" -d '%s'", requestJSONPreview(f)))
	sb.WriteString(fmt.Sprintf(" https://proxycast.local/v1/chat/completions # model=%s provider=%s",
		f.Routing.ResolvedModel, f.Routing.Provider))
	return sb.String()
}

func requestJSONPreview(f *LLMFlow) string {
	var sb strings.Builder
	sb.WriteString(`{"model":"`)
	sb.WriteString(f.ResolvedRequest.Model)
	sb.WriteString(`","messages":[`)
	for i, m := range f.ResolvedRequest.Messages {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf(`{"role":"%s","content":"%s"}`, m.Role, escapeQuotes(flattenText(m))))
	}
	sb.WriteString("]}")
	return sb.String()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}
