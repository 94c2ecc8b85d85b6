package api

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/flow"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/protocol"
	"github.com/tytsxai/proxycast/provider"
	"github.com/tytsxai/proxycast/resilience"
)

// fakeDispatcher streams a single fixed OpenAI SSE body so DispatchStream
// can be exercised without a real upstream.
type fakeDispatcher struct{}

func (fakeDispatcher) Kind() credential.Kind { return credential.OpenAI }

func (fakeDispatcher) NonStreaming(context.Context, provider.Request) (provider.Response, error) {
	body := `{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],` +
		`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
	return provider.Response{StatusCode: 200, Body: []byte(body)}, nil
}

func (fakeDispatcher) Streaming(context.Context, provider.Request) (provider.ByteStream, error) {
	body := `data: {"choices":[{"delta":{"content":"hello "}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"world"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	return provider.ByteStream{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

// recordingWriter captures every chunk written, standing in for the
// http.ResponseWriter adapter a real handler would use.
type recordingWriter struct {
	chunks [][]byte
}

func (w *recordingWriter) WriteChunk(b []byte) error {
	cp := append([]byte(nil), b...)
	w.chunks = append(w.chunks, cp)
	return nil
}

func (w *recordingWriter) Flush() {}

func newTestState(t *testing.T) *AppState {
	t.Helper()
	pool := credential.NewPool(credential.OpenAI)
	cred := &credential.Credential{ID: uuid.New(), Kind: credential.OpenAI, Payload: credential.APIKey{Key: "sk-test"}}
	if err := pool.Add(cred); err != nil {
		t.Fatalf("pool.Add: %v", err)
	}

	registry := provider.NewRegistry()
	registry.Register(fakeDispatcher{})

	return &AppState{
		Pools:       map[credential.Kind]*credential.Pool{credential.OpenAI: pool},
		Dispatchers: registry,
		Auth:        pipeline.NewAuthStep(""),
		Routing:     pipeline.NewRoutingStep(nil, nil, credential.OpenAI),
		Injection:   pipeline.NewInjectionStep(nil),
		Plugins:     pipeline.NewPluginStep(nil),
		Resilience:  resilience.NewExecutor(resilience.Config{}, nil),
		Flows:       flow.NewStore(),
	}
}

// TestDispatchStreamReconstructsFlowResponse verifies that DispatchStream
// records real per-chunk delta text and a fully populated final Response
// on the flow, instead of an empty placeholder.
func TestDispatchStreamReconstructsFlowResponse(t *testing.T) {
	state := newTestState(t)
	rc := pipeline.New(protocol.OpenAI, protocol.Document{Model: "gpt-4o", Messages: []protocol.Message{{Role: protocol.RoleUser}}})
	rc.OriginalModel = "gpt-4o"

	w := &recordingWriter{}
	if err := state.DispatchStream(context.Background(), rc, "", w); err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}

	var joined strings.Builder
	for _, c := range w.chunks {
		joined.Write(c)
	}
	if !strings.Contains(joined.String(), "hello") || !strings.Contains(joined.String(), "world") {
		t.Fatalf("expected client-framed output to carry streamed content, got: %s", joined.String())
	}

	result := state.Flows.List(flow.Expr{}, flow.SortByCreatedDesc, flow.Page{Number: 1, Size: 10})
	if len(result.Flows) != 1 {
		t.Fatalf("expected exactly one recorded flow, got %d", len(result.Flows))
	}
	found := result.Flows[0]
	if found.Response.Usage.TotalTokens != 7 {
		t.Fatalf("expected reconstructed usage total 7, got %+v", found.Response.Usage)
	}
	if found.Response.StopReason != protocol.StopEndTurn {
		t.Fatalf("expected stop reason 'stop', got %q", found.Response.StopReason)
	}
	if len(found.Response.Message.Parts) != 1 || found.Response.Message.Parts[0].Text != "hello world" {
		t.Fatalf("expected reconstructed text 'hello world', got %+v", found.Response.Message.Parts)
	}
}

// TestDispatchHonorsInterceptorDrop verifies that an Interceptor wired onto
// AppState can veto a request before it reaches the upstream provider.
func TestDispatchHonorsInterceptorDrop(t *testing.T) {
	state := newTestState(t)
	ic := flow.NewInterceptor()
	ic.SetFilter(flow.MustParse(`~m "gpt-4o"`))
	ic.SetTimeout(2 * time.Second)
	state.Interceptor = ic

	go func() {
		for i := 0; i < 200; i++ {
			if pending := ic.Pending(); len(pending) > 0 {
				ic.Decide(pending[0], flow.Decision{Action: flow.ActionDrop})
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	rc := pipeline.New(protocol.OpenAI, protocol.Document{Model: "gpt-4o", Messages: []protocol.Message{{Role: protocol.RoleUser}}})
	rc.OriginalModel = "gpt-4o"

	_, err := state.Dispatch(context.Background(), rc, "")
	if err == nil {
		t.Fatal("expected Dispatch to fail after an ActionDrop intercept decision")
	}

	result := state.Flows.List(flow.Expr{}, flow.SortByCreatedDesc, flow.Page{Number: 1, Size: 10})
	if len(result.Flows) != 1 || result.Flows[0].State != flow.Failed {
		t.Fatalf("expected the intercepted flow to be recorded Failed, got %+v", result.Flows)
	}
}

// TestReplayerResubmitsThroughAppState verifies AppState.InstallReplayer
// wires a working flow.Dispatcher so Replayer.Replay can resubmit a past
// flow's request end to end.
func TestReplayerResubmitsThroughAppState(t *testing.T) {
	state := newTestState(t)
	state.InstallReplayer()

	rc := pipeline.New(protocol.OpenAI, protocol.Document{Model: "gpt-4o", Messages: []protocol.Message{{Role: protocol.RoleUser}}})
	rc.OriginalModel = "gpt-4o"
	orig, err := state.Dispatch(context.Background(), rc, "")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	origID, err := uuid.Parse(orig.FlowID)
	if err != nil {
		t.Fatalf("parse flow id: %v", err)
	}

	newID, err := state.Replayer.Replay(context.Background(), origID, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	result := state.Flows.List(flow.Expr{}, flow.SortByCreatedDesc, flow.Page{Number: 1, Size: 10})
	var replayed *flow.LLMFlow
	for i := range result.Flows {
		if result.Flows[i].ID == newID {
			replayed = &result.Flows[i]
		}
	}
	if replayed == nil {
		t.Fatal("expected the replay to produce a new flow record")
	}
	if replayed.Type != flow.TypeReplay {
		t.Fatalf("expected replay flow type, got %q", replayed.Type)
	}
	if replayed.Annotations.Extra["replay_of"] != origID.String() {
		t.Fatalf("expected replay_of annotation pointing at the source flow, got %+v", replayed.Annotations)
	}
}
