package streamconv

import (
	"encoding/json"
	"fmt"
)

// encoder renders semanticEvents into the client's expected wire format.
// It is stateful only to the extent the target framing requires (SSE
// event sequencing, tool-call id bookkeeping for formats that must emit
// complete JSON arguments rather than raw deltas).
type encoder interface {
	encode(e semanticEvent) [][]byte
	finish() [][]byte
}

func newEncoder(dst Format) encoder {
	switch dst {
	case FormatOpenAI:
		return &openAIEncoder{acc: newPartialJSONAccumulator()}
	case FormatAnthropic:
		return &anthropicEncoder{acc: newPartialJSONAccumulator()}
	case FormatGemini:
		return &geminiEncoder{}
	default:
		return &openAIEncoder{acc: newPartialJSONAccumulator()}
	}
}

func sseFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("data: %s\n\n", b))
}

// --- OpenAI SSE encoder ---------------------------------------------------

type openAIEncoder struct {
	acc *partialJSONAccumulator
}

func (e *openAIEncoder) encode(ev semanticEvent) [][]byte {
	switch ev.kind {
	case semContentDelta:
		return [][]byte{sseFrame(openAIDeltaChunk(ev.text, nil, ""))}
	case semToolCallStart:
		e.acc.start(ev.toolID, ev.toolName)
		return [][]byte{sseFrame(openAIToolDeltaChunk(ev.toolID, ev.toolName, ""))}
	case semToolCallDelta:
		e.acc.append(ev.toolID, ev.partial)
		return [][]byte{sseFrame(openAIToolDeltaChunk(ev.toolID, "", ev.partial))}
	case semToolCallStop:
		e.acc.stop(ev.toolID)
		return nil
	case semMessageStop:
		return [][]byte{sseFrame(openAIFinishChunk(finishReasonFor(ev.stop)))}
	case semUsage:
		return [][]byte{sseFrame(openAIUsageChunk(ev.promptTokens, ev.completionTokens))}
	case semParseError:
		return nil
	default:
		return nil
	}
}

func (e *openAIEncoder) finish() [][]byte {
	return [][]byte{[]byte("data: [DONE]\n\n")}
}

func finishReasonFor(s stopReason) string {
	switch s {
	case stopMaxTokens:
		return "length"
	case stopToolUse:
		return "tool_calls"
	case stopContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

func openAIDeltaChunk(content string, toolCalls any, finish string) map[string]any {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	choice := map[string]any{"index": 0, "delta": delta}
	if finish != "" {
		choice["finish_reason"] = finish
	} else {
		choice["finish_reason"] = nil
	}
	return map[string]any{"object": "chat.completion.chunk", "choices": []any{choice}}
}

func openAIToolDeltaChunk(id, name, argsFragment string) map[string]any {
	tc := map[string]any{"index": 0}
	if id != "" {
		tc["id"] = id
	}
	fn := map[string]any{}
	if name != "" {
		fn["name"] = name
	}
	if argsFragment != "" {
		fn["arguments"] = argsFragment
	}
	tc["function"] = fn
	delta := map[string]any{"tool_calls": []any{tc}}
	return map[string]any{"object": "chat.completion.chunk", "choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": nil}}}
}

func openAIFinishChunk(reason string) map[string]any {
	return map[string]any{"object": "chat.completion.chunk", "choices": []any{map[string]any{"index": 0, "delta": map[string]any{}, "finish_reason": reason}}}
}

func openAIUsageChunk(prompt, completion int) map[string]any {
	return map[string]any{
		"object": "chat.completion.chunk",
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
}

// --- Anthropic SSE encoder -------------------------------------------------

type anthropicEncoder struct {
	acc       *partialJSONAccumulator
	started   bool
	blockOpen bool
}

func (e *anthropicEncoder) encode(ev semanticEvent) [][]byte {
	var out [][]byte
	if !e.started {
		e.started = true
		out = append(out, sseFrame(map[string]any{"type": "message_start", "message": map[string]any{"role": "assistant", "content": []any{}}}))
	}
	switch ev.kind {
	case semContentDelta:
		out = append(out, sseFrame(map[string]any{"type": "content_block_delta", "index": 0, "delta": map[string]any{"type": "text_delta", "text": ev.text}}))
	case semThinkingDelta:
		out = append(out, sseFrame(map[string]any{"type": "content_block_delta", "index": 0, "delta": map[string]any{"type": "thinking_delta", "thinking": ev.text}}))
	case semToolCallStart:
		e.acc.start(ev.toolID, ev.toolName)
		out = append(out, sseFrame(map[string]any{"type": "content_block_start", "index": 0, "content_block": map[string]any{"type": "tool_use", "id": ev.toolID, "name": ev.toolName, "input": map[string]any{}}}))
	case semToolCallDelta:
		e.acc.append(ev.toolID, ev.partial)
		out = append(out, sseFrame(map[string]any{"type": "content_block_delta", "index": 0, "delta": map[string]any{"type": "input_json_delta", "partial_json": ev.partial}}))
	case semToolCallStop:
		e.acc.stop(ev.toolID)
		out = append(out, sseFrame(map[string]any{"type": "content_block_stop", "index": 0}))
	case semMessageStop:
		out = append(out, sseFrame(map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": anthropicStopReason(ev.stop)}}))
		out = append(out, sseFrame(map[string]any{"type": "message_stop"}))
	case semUsage:
		out = append(out, sseFrame(map[string]any{"type": "message_delta", "usage": map[string]any{"output_tokens": ev.completionTokens}}))
	case semParseError:
		return nil
	}
	return out
}

func (e *anthropicEncoder) finish() [][]byte { return nil }

func anthropicStopReason(s stopReason) string {
	switch s {
	case stopMaxTokens:
		return "max_tokens"
	case stopToolUse:
		return "tool_use"
	case stopContentFilter:
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// --- Gemini SSE encoder -----------------------------------------------------

type geminiEncoder struct{}

func (e *geminiEncoder) encode(ev semanticEvent) [][]byte {
	switch ev.kind {
	case semContentDelta:
		return [][]byte{sseFrame(geminiChunk([]any{map[string]any{"text": ev.text}}, ""))}
	case semToolCallDelta:
		var args map[string]any
		_ = json.Unmarshal([]byte(ev.partial), &args)
		return [][]byte{sseFrame(geminiChunk([]any{map[string]any{"functionCall": map[string]any{"name": ev.toolName, "args": args}}}, ""))}
	case semMessageStop:
		return [][]byte{sseFrame(geminiChunk(nil, geminiFinishReason(ev.stop)))}
	case semUsage:
		return [][]byte{sseFrame(map[string]any{"usageMetadata": map[string]any{"promptTokenCount": ev.promptTokens, "candidatesTokenCount": ev.completionTokens}})}
	default:
		return nil
	}
}

func (e *geminiEncoder) finish() [][]byte { return nil }

func geminiChunk(parts []any, finishReason string) map[string]any {
	cand := map[string]any{}
	if parts != nil {
		cand["content"] = map[string]any{"role": "model", "parts": parts}
	}
	if finishReason != "" {
		cand["finishReason"] = finishReason
	}
	return map[string]any{"candidates": []any{cand}}
}

func geminiFinishReason(s stopReason) string {
	switch s {
	case stopMaxTokens:
		return "MAX_TOKENS"
	case stopContentFilter:
		return "SAFETY"
	default:
		return "STOP"
	}
}
