package streamconv

import (
	"strings"

	"github.com/tytsxai/proxycast/protocol"
)

// responseAccumulator rebuilds the protocol-neutral Response a stream
// represents by replaying the same semanticEvents the encoder consumes, so
// the flow store can record real content, tool calls, usage, and a stop
// reason for a streamed request instead of an empty placeholder.
type responseAccumulator struct {
	content  strings.Builder
	thinking strings.Builder

	toolOrder []string
	tools     *partialJSONAccumulator

	stopSet bool
	stop    stopReason

	usage protocol.Usage
}

func newResponseAccumulator() *responseAccumulator {
	return &responseAccumulator{tools: newPartialJSONAccumulator()}
}

func (a *responseAccumulator) apply(ev semanticEvent) {
	switch ev.kind {
	case semContentDelta:
		a.content.WriteString(ev.text)
	case semThinkingDelta:
		a.thinking.WriteString(ev.text)
	case semToolCallStart:
		a.tools.start(ev.toolID, ev.toolName)
		a.toolOrder = append(a.toolOrder, ev.toolID)
	case semToolCallDelta:
		id := ev.toolID
		if id == "" && len(a.toolOrder) > 0 {
			// OpenAI continuation chunks carry no id; they extend the most
			// recently started tool call.
			id = a.toolOrder[len(a.toolOrder)-1]
		}
		a.tools.append(id, ev.partial)
	case semMessageStop:
		a.stop = ev.stop
		a.stopSet = true
	case semUsage:
		if ev.promptTokens > 0 {
			a.usage.PromptTokens = ev.promptTokens
		}
		if ev.completionTokens > 0 {
			a.usage.CompletionTokens = ev.completionTokens
		}
		a.usage.TotalTokens = a.usage.PromptTokens + a.usage.CompletionTokens
	}
}

// result renders the accumulated state into a protocol.Response. It may be
// called at any point in the stream (DispatchStream calls it once, after
// Finish); parts for fields that never arrived are simply omitted.
func (a *responseAccumulator) result() protocol.Response {
	var parts []protocol.Part
	if a.thinking.Len() > 0 {
		parts = append(parts, protocol.Part{Kind: protocol.PartThinking, Text: a.thinking.String()})
	}
	if a.content.Len() > 0 {
		parts = append(parts, protocol.Part{Kind: protocol.PartText, Text: a.content.String()})
	}
	for _, id := range a.toolOrder {
		name, args, _ := a.tools.complete(id)
		parts = append(parts, protocol.Part{
			Kind:         protocol.PartToolCall,
			ToolCallID:   id,
			ToolName:     name,
			ToolArgsJSON: string(args),
		})
	}

	sr := protocol.StopEndTurn
	switch {
	case a.stopSet:
		sr = mapStopReason(a.stop)
	case len(a.toolOrder) > 0:
		sr = protocol.StopToolUse
	}

	return protocol.Response{
		Message:    protocol.Message{Role: protocol.RoleAssistant, Parts: parts},
		StopReason: sr,
		Usage:      a.usage,
	}
}

func mapStopReason(s stopReason) protocol.StopReason {
	switch s {
	case stopMaxTokens:
		return protocol.StopMaxTokens
	case stopToolUse:
		return protocol.StopToolUse
	case stopContentFilter:
		return protocol.StopContentFilter
	default:
		return protocol.StopEndTurn
	}
}
