package streamconv

import (
	"strings"
	"testing"

	"github.com/tytsxai/proxycast/protocol"
)

func TestOpenAIToAnthropicToolCall(t *testing.T) {
	c := New(FormatOpenAI, FormatAnthropic)

	var out [][]byte
	feed := func(chunk string) {
		frames, _ := c.Feed([]byte(chunk))
		out = append(out, frames...)
	}
	feed(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}}]}}]}` + "\n\n")
	feed(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}` + "\n\n")
	feed(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"sf\"}"}}]}}]}` + "\n\n")
	feed(`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}` + "\n\n")
	out = append(out, c.Finish()...)

	joined := joinBytes(out)
	if !strings.Contains(joined, "tool_use") {
		t.Fatalf("expected a tool_use content block, got: %s", joined)
	}
	if !strings.Contains(joined, "message_stop") {
		t.Fatalf("expected message_stop, got: %s", joined)
	}

	resp := c.Result()
	if len(resp.Message.Parts) != 1 || resp.Message.Parts[0].Kind != protocol.PartToolCall {
		t.Fatalf("expected exactly one reconstructed tool_call part, got: %+v", resp.Message.Parts)
	}
	if resp.Message.Parts[0].ToolName != "get_weather" {
		t.Fatalf("expected tool name get_weather, got %q", resp.Message.Parts[0].ToolName)
	}
	if resp.Message.Parts[0].ToolArgsJSON != `{"city":"sf"}` {
		t.Fatalf("expected assembled tool args, got %q", resp.Message.Parts[0].ToolArgsJSON)
	}
	if resp.StopReason != protocol.StopToolUse {
		t.Fatalf("expected stop reason tool_calls, got %q", resp.StopReason)
	}
}

func TestOrderingPreservesCausalSequence(t *testing.T) {
	c := New(FormatOpenAI, FormatOpenAI)
	a, deltaA := c.Feed([]byte(`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n"))
	b, deltaB := c.Feed([]byte(`data: {"choices":[{"delta":{"content":"b"}}]}` + "\n\n"))
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected output for both chunks")
	}
	if !strings.Contains(string(a[0]), `"a"`) {
		t.Fatalf("chunk A output should carry content a, got %s", a[0])
	}
	if !strings.Contains(string(b[0]), `"b"`) {
		t.Fatalf("chunk B output should carry content b, got %s", b[0])
	}
	if deltaA != "a" || deltaB != "b" {
		t.Fatalf("expected per-chunk delta text a/b, got %q/%q", deltaA, deltaB)
	}
	if concat := deltaA + deltaB; concat != c.Result().Message.Parts[0].Text {
		t.Fatalf("concatenated deltas %q should equal reconstructed text %q", concat, c.Result().Message.Parts[0].Text)
	}
}

func TestAWSToOpenAIParseErrorDoesNotHaltStream(t *testing.T) {
	c := New(FormatAWS, FormatOpenAI)
	var out [][]byte
	feed := func(chunk string) {
		frames, _ := c.Feed([]byte(chunk))
		out = append(out, frames...)
	}
	feed(`{"content":"hello"}`)
	feed(`{not-json}`)
	feed(`{"stop":true}`)
	out = append(out, c.Finish()...)

	joined := joinBytes(out)
	if !strings.Contains(joined, "hello") {
		t.Fatalf("expected content chunk to survive, got: %s", joined)
	}
	if !strings.Contains(joined, "[DONE]") {
		t.Fatalf("expected terminal DONE frame, got: %s", joined)
	}
}

func TestErrorFrameWireFormat(t *testing.T) {
	frame := string(ErrorFrame("network", "connection reset"))
	if !strings.HasPrefix(frame, "event: error\ndata: ") {
		t.Fatalf("unexpected error frame shape: %s", frame)
	}
	if !strings.Contains(frame, "connection reset") {
		t.Fatalf("expected message in frame: %s", frame)
	}
}

func joinBytes(chunks [][]byte) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.Write(c)
	}
	return sb.String()
}
