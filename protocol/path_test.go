package protocol

import (
	"testing"

	"github.com/tytsxai/proxycast/credential"
)

func TestSelectPath_NoConversionWhenSame(t *testing.T) {
	path := SelectPath(OpenAI, credential.OpenAI)
	if path.NeedsConversion {
		t.Fatal("expected no conversion for matching protocols")
	}
	if path.Complexity != 0 {
		t.Fatalf("expected complexity 0, got %d", path.Complexity)
	}
}

func TestSelectPath_ConversionNeeded(t *testing.T) {
	path := SelectPath(OpenAI, credential.Kiro)
	if !path.NeedsConversion {
		t.Fatal("expected conversion for OpenAI -> Kiro")
	}
	if path.Target != CodeWhisperer {
		t.Fatalf("expected CodeWhisperer target, got %s", path.Target)
	}
}

func TestNeedsSpecialHandling_ToolsToCodeWhisperer(t *testing.T) {
	if !NeedsSpecialHandling(OpenAI, credential.Kiro, true, false) {
		t.Fatal("expected special handling for tools targeting Kiro")
	}
	if NeedsSpecialHandling(OpenAI, credential.OpenAI, true, false) {
		t.Fatal("did not expect special handling for tools targeting OpenAI")
	}
}

func TestNeedsSpecialHandling_ImagesToKiro(t *testing.T) {
	if !NeedsSpecialHandling(OpenAI, credential.Kiro, false, true) {
		t.Fatal("expected special handling for images targeting Kiro")
	}
}

func TestConvertRequest_OpenAIToAnthropic_RoundTripsSystemAndText(t *testing.T) {
	in := []byte(`{"model":"gpt-4","messages":[{"role":"system","content":"be terse"},{"role":"user","content":"hi"}]}`)
	out, _, err := ConvertRequest(OpenAI, Anthropic, in)
	if err != nil {
		t.Fatal(err)
	}
	doc, _, err := anthropicRequestToDocument(out)
	if err != nil {
		t.Fatal(err)
	}
	if doc.System != "be terse" {
		t.Fatalf("expected system prompt preserved, got %q", doc.System)
	}
	if len(doc.Messages) != 1 || doc.Messages[0].Parts[0].Text != "hi" {
		t.Fatalf("expected single user message 'hi', got %+v", doc.Messages)
	}
}

func TestConvertRequest_ToolDefinitionsPreserveSchema(t *testing.T) {
	in := []byte(`{"model":"gpt-4","messages":[{"role":"user","content":"weather?"}],"tools":[{"type":"function","function":{"name":"get_weather","parameters":{"type":"object","properties":{"city":{"type":"string"}}}}}]}`)
	out, _, err := ConvertRequest(OpenAI, Anthropic, in)
	if err != nil {
		t.Fatal(err)
	}
	doc, _, err := anthropicRequestToDocument(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tools) != 1 || doc.Tools[0].Name != "get_weather" {
		t.Fatalf("expected get_weather tool preserved, got %+v", doc.Tools)
	}
}

func TestConvertResponse_StopReasonMapping(t *testing.T) {
	in := []byte(`{"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"length"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	out, err := ConvertResponse(OpenAI, Anthropic, in)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := anthropicResponseToCanonical(out)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StopReason != StopMaxTokens {
		t.Fatalf("expected length -> StopMaxTokens round trip, got %s", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage preserved, got %+v", resp.Usage)
	}
}
