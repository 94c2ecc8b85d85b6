package awsstream

import "testing"

func TestParser_ContentEvent(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"content":"hello"}`))
	if len(events) != 1 || events[0].Kind != EventContent || events[0].Text != "hello" {
		t.Fatalf("expected single content event, got %+v", events)
	}
}

func TestParser_IncrementalChunking(t *testing.T) {
	p := New()
	if events := p.Process([]byte(`{"cont`)); len(events) != 0 {
		t.Fatalf("expected no events on incomplete frame, got %+v", events)
	}
	events := p.Process([]byte(`ent":"hi"}`))
	if len(events) != 1 || events[0].Text != "hi" {
		t.Fatalf("expected content event after completion, got %+v", events)
	}
}

func TestParser_ToolUseLifecycle(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"toolUseId":"t1","name":"get_weather"}`))
	if len(events) != 1 || events[0].Kind != EventToolUseStart {
		t.Fatalf("expected ToolUseStart, got %+v", events)
	}

	events = p.Process([]byte(`{"toolUseId":"t1","input":"{\"city\":"}`))
	if len(events) != 1 || events[0].Kind != EventToolUseInput || events[0].PartialJSON != `{"city":` {
		t.Fatalf("expected ToolUseInput with partial json, got %+v", events)
	}

	events = p.Process([]byte(`{"toolUseId":"t1","input":"\"NYC\"}","stop":true}`))
	if len(events) != 2 || events[0].Kind != EventToolUseInput || events[1].Kind != EventToolUseStop {
		t.Fatalf("expected input then stop, got %+v", events)
	}
}

func TestParser_StandaloneStop(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"stop":true}`))
	if len(events) != 1 || events[0].Kind != EventStop {
		t.Fatalf("expected Stop event, got %+v", events)
	}
}

func TestParser_Usage(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"usage":0.34}`))
	if len(events) != 1 || events[0].Kind != EventUsage || events[0].Credits != 0.34 {
		t.Fatalf("expected usage event with credits, got %+v", events)
	}
}

func TestParser_ContextUsagePercentage(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"contextUsagePercentage":54.36}`))
	if len(events) != 1 || events[0].Kind != EventUsage || events[0].ContextUsagePercent != 54.36 {
		t.Fatalf("expected usage event with context percentage, got %+v", events)
	}
}

func TestParser_MalformedFrameRecoversAndContinues(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"content":"ok"}{not-json}{"content":"after"}`))
	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 3 || kinds[0] != EventContent || kinds[1] != EventParseError || kinds[2] != EventContent {
		t.Fatalf("expected content, parse-error, content, got %+v", events)
	}
	if p.ParseErrorCount() != 1 {
		t.Fatalf("expected parse_error_count=1, got %d", p.ParseErrorCount())
	}
}

func TestParser_BufferOverflowEmitsParseErrorWithoutPanic(t *testing.T) {
	p := NewWithMaxBufferSize(8)
	events := p.Process([]byte(`{"content":"this is far too long for the buffer"}`))
	if len(events) != 1 || events[0].Kind != EventParseError {
		t.Fatalf("expected a ParseError on overflow, got %+v", events)
	}
}

func TestParser_FinishSynthesizesToolUseStopForOpenAccumulators(t *testing.T) {
	p := New()
	p.Process([]byte(`{"toolUseId":"t1","name":"search"}`))
	events := p.Finish()
	if len(events) != 1 || events[0].Kind != EventToolUseStop || events[0].ToolUseID != "t1" {
		t.Fatalf("expected synthesized ToolUseStop on finish, got %+v", events)
	}
	if p.State() != StateCompleted {
		t.Fatalf("expected Completed state after finish, got %s", p.State())
	}
}

func TestParser_FollowupPromptIsClassifiedSeparately(t *testing.T) {
	p := New()
	events := p.Process([]byte(`{"content":"next question?","followupPrompt":true}`))
	if len(events) != 1 || events[0].Kind != EventFollowupPrompt {
		t.Fatalf("expected FollowupPrompt event, got %+v", events)
	}
}

func TestParser_EmptyInputIsNoOp(t *testing.T) {
	p := New()
	if events := p.Process(nil); events != nil {
		t.Fatalf("expected nil for empty input, got %+v", events)
	}
}

func TestParser_ContentConcatenationInvariant(t *testing.T) {
	p := New()
	frames := []byte(`{"content":"a"}{"content":"b"}{"content":"c"}`)
	var total string
	for _, e := range p.Process(frames) {
		if e.Kind == EventContent {
			total += e.Text
		}
	}
	if total != "abc" {
		t.Fatalf("expected concatenated content 'abc', got %q", total)
	}
}
