package flow

import (
	"context"
	"testing"
	"time"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/protocol"
)

func TestFilterRoundTrip(t *testing.T) {
	src := `(~m gpt-* | ~tokens > 500) & !~s failed`
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reparsed, err := Parse(e.String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	f1 := &LLMFlow{State: Completed, Routing: RoutingMeta{ResolvedModel: "gpt-4"}}
	f1.Response.Usage.TotalTokens = 1000
	f2 := &LLMFlow{State: Failed, Routing: RoutingMeta{ResolvedModel: "claude-3"}}
	f2.Response.Usage.TotalTokens = 50

	for _, f := range []*LLMFlow{f1, f2} {
		if e.Eval(f) != reparsed.Eval(f) {
			t.Fatalf("round trip mismatch for flow %+v", f.Routing)
		}
	}
	if !e.Eval(f1) {
		t.Fatal("expected f1 to match")
	}
	if e.Eval(f2) {
		t.Fatal("expected f2 not to match")
	}
}

func TestFilterExpressionScenario(t *testing.T) {
	e := MustParse(`(~m gpt-* | ~tokens > 500) & !~s failed`)

	f1 := &LLMFlow{State: Completed, Routing: RoutingMeta{ResolvedModel: "gpt-4"}}
	f1.Response.Usage.TotalTokens = 1000
	f2 := &LLMFlow{State: Failed, Routing: RoutingMeta{ResolvedModel: "claude-3"}}
	f2.Response.Usage.TotalTokens = 50

	if !e.Eval(f1) || e.Eval(f2) {
		t.Fatal("expected exactly {f1} to match")
	}
}

func TestStoreBeginChunkFinish(t *testing.T) {
	s := NewStore()
	id := s.Begin(protocol.Document{Model: "gpt-4"}, RoutingMeta{Provider: credential.OpenAI, ResolvedModel: "gpt-4"}, TypeChat)

	f, ok := s.Get(id)
	if !ok || f.State != Pending {
		t.Fatalf("expected pending flow, got %+v", f)
	}

	s.OnChunk(id, "hello", 5)
	s.OnChunk(id, " world", 6)

	f, _ = s.Get(id)
	if f.State != Streaming {
		t.Fatalf("expected streaming state, got %s", f.State)
	}
	if f.Stream.ChunkCount != 2 || f.Stream.TotalBytes != 11 {
		t.Fatalf("unexpected stream metrics: %+v", f.Stream)
	}
	if f.Stream.MinChunkSize > f.Stream.AvgChunkSize() || f.Stream.AvgChunkSize() > float64(f.Stream.MaxChunkSize) {
		t.Fatalf("min <= avg <= max violated: %+v", f.Stream)
	}

	s.Finish(id, protocol.Response{StopReason: protocol.StopEndTurn})
	f, _ = s.Get(id)
	if f.State != Completed {
		t.Fatalf("expected completed, got %s", f.State)
	}
}

func TestInterceptorDefaultAcceptOnTimeout(t *testing.T) {
	s := NewStore()
	ic := NewInterceptor()
	ic.SetFilter(MustParse(`~m claude-*`))
	ic.SetTimeout(10 * time.Millisecond)

	id := s.Begin(protocol.Document{Model: "claude-3"}, RoutingMeta{ResolvedModel: "claude-3"}, TypeChat)

	dec := s.RunIntercept(context.Background(), ic, id)
	if dec.Action != ActionAccept {
		t.Fatalf("expected default accept on timeout, got %v", dec.Action)
	}
}

func TestBatchApplyStar(t *testing.T) {
	s := NewStore()
	id1 := s.Begin(protocol.Document{Model: "gpt-4"}, RoutingMeta{ResolvedModel: "gpt-4"}, TypeChat)
	_ = s.Begin(protocol.Document{Model: "claude-3"}, RoutingMeta{ResolvedModel: "claude-3"}, TypeChat)

	res := s.BatchApply(MustParse(`~m gpt-*`), BatchStar, "")
	if res.Matched != 1 || res.Applied != 1 {
		t.Fatalf("expected exactly one match/applied, got %+v", res)
	}
	f, _ := s.Get(id1)
	if !f.Annotations.Starred {
		t.Fatal("expected flow to be starred")
	}
}
