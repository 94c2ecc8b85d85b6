package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
	"github.com/tytsxai/proxycast/flow"
	"github.com/tytsxai/proxycast/internal/telemetry"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/protocol"
	"github.com/tytsxai/proxycast/provider"
	"github.com/tytsxai/proxycast/resilience"
	"github.com/tytsxai/proxycast/streamconv"
	"github.com/tytsxai/proxycast/tokencache"
)

// AppState is the single dependency container assembled in cmd/proxycast's
// main and threaded through every handler, per spec.md §9's "AppState is
// injected; no process-wide singletons" rule. Grounded on the teacher's
// (github.com/BaSui01/agentflow) api's handler-constructor pattern, widened
// into one struct since ProxyCast's handlers all share the identical
// dispatch path and differ only in wire protocol.
type AppState struct {
	Logger  *zap.Logger
	Metrics *telemetry.Collector
	Tracer  *telemetry.RequestTracer

	Pools       map[credential.Kind]*credential.Pool
	TokenCaches map[credential.Kind]*tokencache.Cache
	Dispatchers *provider.Registry

	Auth      *pipeline.AuthStep
	Routing   *pipeline.RoutingStep
	Injection *pipeline.InjectionStep
	Plugins   *pipeline.PluginStep

	Resilience *resilience.Executor
	Flows      *flow.Store

	// Interceptor, when set, is consulted for every new flow via
	// Flows.RunIntercept before the request reaches the upstream provider,
	// per spec.md §4.6/scenario 5. Replayer resubmits a past flow's
	// request through replayDispatcher, which adapts Dispatch to the
	// narrow flow.Dispatcher signature flow.Replayer expects.
	Interceptor *flow.Interceptor
	Replayer    *flow.Replayer

	Providers []credential.Kind
}

// InstallReplayer builds s.Replayer backed by s.Flows and a
// replayDispatcher over s itself. Call once after every other AppState
// field is set.
func (s *AppState) InstallReplayer() {
	s.Replayer = flow.NewReplayer(s.Flows, replayDispatcher{state: s})
}

// replayDispatcher adapts AppState's request-context-based Dispatch to the
// protocol.Document-based signature flow.Replayer.Dispatcher expects, so
// the flow package never needs to import pipeline (see DESIGN.md's
// "cyclic references avoidance").
type replayDispatcher struct {
	state *AppState
}

func (d replayDispatcher) Dispatch(ctx context.Context, req protocol.Document, meta map[string]string) (protocol.Response, error) {
	rc := pipeline.New(protocol.OpenAI, req)
	for k, v := range meta {
		rc.Metadata[k] = v
	}
	result, err := d.state.dispatch(ctx, rc, "", true)
	if err != nil {
		return protocol.Response{}, err
	}
	return result.Response, nil
}

// formatFor maps a wire protocol onto the streamconv.Format it is framed
// in. CodeWhisperer is the only non-SSE wire shape in spec.md §6's table.
func formatFor(p protocol.Protocol) streamconv.Format {
	switch p {
	case protocol.CodeWhisperer:
		return streamconv.FormatAWS
	case protocol.Anthropic:
		return streamconv.FormatAnthropic
	case protocol.Gemini, protocol.Antigravity:
		return streamconv.FormatGemini
	default:
		return streamconv.FormatOpenAI
	}
}

// DispatchResult is the outcome of a completed non-streaming Dispatch call.
type DispatchResult struct {
	Response protocol.Response
	FlowID   string
}

// prepare runs Auth through PluginPre and resolves the provider dispatcher
// and target protocol, returning the shared state every Dispatch variant
// needs before talking to an upstream. skipAuth bypasses the inbound
// bearer-token check for system-originated requests (replays) that never
// arrived over the wire with client credentials to validate.
func (s *AppState) prepare(ctx context.Context, rc *pipeline.RequestContext, presentedKey string, extraParams map[string]any, skipAuth bool) (provider.Dispatcher, protocol.Protocol, error) {
	if !skipAuth {
		if err := s.Auth.Run(ctx, rc, presentedKey); err != nil {
			return nil, "", err
		}
	}
	if err := s.Routing.Run(rc); err != nil {
		return nil, "", err
	}
	s.Injection.Run(rc, extraParams)
	s.Plugins.RunPre(ctx, rc, nil, extraParams)

	targetProto := protocol.NativeProtocol(rc.Provider)
	rc.TargetProtocol = targetProto

	dispatcher, err := s.Dispatchers.Get(rc.Provider)
	if err != nil {
		return nil, "", &errs.Error{Code: errs.Configuration, Message: err.Error(), HTTPStatus: 500}
	}
	return dispatcher, targetProto, nil
}

// Dispatch runs one non-streaming request end to end: pipeline, transcode,
// resilient upstream call, transcode back, and flow recording.
func (s *AppState) Dispatch(ctx context.Context, rc *pipeline.RequestContext, presentedKey string) (DispatchResult, error) {
	return s.dispatch(ctx, rc, presentedKey, false)
}

// dispatch is Dispatch's implementation, parameterized on skipAuth so
// replayDispatcher can resubmit a reconstructed request without an inbound
// presentedKey to check.
func (s *AppState) dispatch(ctx context.Context, rc *pipeline.RequestContext, presentedKey string, skipAuth bool) (DispatchResult, error) {
	dispatcher, targetProto, err := s.prepare(ctx, rc, presentedKey, nil, skipAuth)
	if err != nil {
		return DispatchResult{}, err
	}

	flowID := s.Flows.Begin(rc.Document, flow.RoutingMeta{
		Provider:       rc.Provider,
		OriginalModel:  rc.OriginalModel,
		ResolvedModel:  rc.ResolvedModel,
		IsDefaultRoute: rc.IsDefaultRoute,
		ClientType:     string(rc.ClientType),
	}, flow.TypeChat)

	if dropErr := s.runIntercept(ctx, flowID, rc); dropErr != nil {
		return DispatchResult{}, dropErr
	}

	upstreamBody, warnings, err := protocol.EncodeRequest(targetProto, rc.Document)
	if err != nil {
		s.Flows.OnError(flowID, errs.FromParse(err, string(rc.Provider)))
		return DispatchResult{}, err
	}
	_ = warnings

	pool, ok := s.Pools[rc.Provider]
	if !ok {
		err := fmt.Errorf("api: no credential pool registered for provider %q", rc.Provider)
		s.Flows.OnError(flowID, errs.FromParse(err, string(rc.Provider)))
		return DispatchResult{}, err
	}

	var span func(error)
	if s.Tracer != nil {
		ctx, span = s.Tracer.StartSpan(ctx, "proxycast.dispatch", string(rc.Provider), rc.ResolvedModel)
	}

	var upstreamResp provider.Response
	usedProvider, usedCred, err := s.Resilience.Run(ctx, []credential.Kind{rc.Provider}, s.Pools, func(ctx context.Context, cred credential.Credential) error {
		req, berr := s.buildUpstreamRequest(ctx, cred, targetProto, rc.ResolvedModel, false, upstreamBody)
		if berr != nil {
			return berr
		}
		resp, derr := dispatcher.NonStreaming(ctx, req)
		if derr != nil {
			return derr
		}
		if resp.StatusCode >= 400 {
			return errs.FromHTTPStatus(resp.StatusCode, string(resp.Body), string(cred.Kind))
		}
		upstreamResp = resp
		return nil
	})
	if span != nil {
		span(err)
	}
	if err != nil {
		s.Flows.OnError(flowID, asFlowError(err, usedProvider))
		return DispatchResult{}, err
	}
	_ = pool

	doc, err := protocol.DecodeResponse(targetProto, upstreamResp.Body)
	if err != nil {
		s.Flows.OnError(flowID, errs.FromParse(err, string(usedProvider)))
		return DispatchResult{}, err
	}

	s.Plugins.RunPost(ctx, rc, nil, map[string]any{"response": doc})
	s.Flows.Finish(flowID, doc)

	if s.Metrics != nil {
		s.Metrics.RequestsTotal.WithLabelValues(string(rc.SourceProtocol), string(usedProvider), "ok").Inc()
		s.Metrics.TokensUsed.WithLabelValues(string(usedProvider), "prompt").Add(float64(doc.Usage.PromptTokens))
		s.Metrics.TokensUsed.WithLabelValues(string(usedProvider), "completion").Add(float64(doc.Usage.CompletionTokens))
	}
	_ = usedCred

	return DispatchResult{Response: doc, FlowID: flowID.String()}, nil
}

// ChunkWriter streams client-protocol-framed bytes to the caller, flushing
// after every write. http.Handler implementations adapt http.ResponseWriter
// to this to keep the streaming path testable without net/http.
type ChunkWriter interface {
	WriteChunk(b []byte) error
	Flush()
}

// DispatchStream runs one streaming request end to end, writing
// client-framed bytes to w as upstream bytes arrive.
func (s *AppState) DispatchStream(ctx context.Context, rc *pipeline.RequestContext, presentedKey string, w ChunkWriter) error {
	dispatcher, targetProto, err := s.prepare(ctx, rc, presentedKey, nil, false)
	if err != nil {
		return err
	}
	rc.IsStream = true
	rc.Document.Stream = true

	flowID := s.Flows.Begin(rc.Document, flow.RoutingMeta{
		Provider:       rc.Provider,
		OriginalModel:  rc.OriginalModel,
		ResolvedModel:  rc.ResolvedModel,
		IsDefaultRoute: rc.IsDefaultRoute,
		ClientType:     string(rc.ClientType),
	}, flow.TypeChat)

	if dropErr := s.runIntercept(ctx, flowID, rc); dropErr != nil {
		return dropErr
	}

	upstreamBody, _, err := protocol.EncodeRequest(targetProto, rc.Document)
	if err != nil {
		s.Flows.OnError(flowID, errs.FromParse(err, string(rc.Provider)))
		return err
	}

	conv := streamconv.New(formatFor(targetProto), formatFor(rc.SourceProtocol))

	var span func(error)
	if s.Tracer != nil {
		ctx, span = s.Tracer.StartSpan(ctx, "proxycast.dispatch_stream", string(rc.Provider), rc.ResolvedModel)
	}

	var usedProvider credential.Kind
	_, _, err = s.Resilience.Run(ctx, []credential.Kind{rc.Provider}, s.Pools, func(ctx context.Context, cred credential.Credential) error {
		req, berr := s.buildUpstreamRequest(ctx, cred, targetProto, rc.ResolvedModel, true, upstreamBody)
		if berr != nil {
			return berr
		}
		stream, derr := dispatcher.Streaming(ctx, req)
		if derr != nil {
			return derr
		}
		defer stream.Body.Close()
		if stream.StatusCode >= 400 {
			return errs.FromHTTPStatus(stream.StatusCode, "", string(cred.Kind))
		}
		usedProvider = cred.Kind

		buf := make([]byte, 32*1024)
		for {
			n, rerr := stream.Body.Read(buf)
			if n > 0 {
				frames, deltaText := conv.Feed(buf[:n])
				for _, frame := range frames {
					if werr := w.WriteChunk(frame); werr != nil {
						return werr
					}
				}
				s.Flows.OnChunk(flowID, deltaText, n)
				w.Flush()
			}
			if rerr != nil {
				break
			}
		}
		return nil
	})
	if span != nil {
		span(err)
	}
	if err != nil {
		s.Flows.OnError(flowID, asFlowError(err, usedProvider))
		frame := streamconv.ErrorFrame(string(errs.Network), err.Error())
		_ = w.WriteChunk(frame)
		w.Flush()
		return err
	}

	for _, frame := range conv.Finish() {
		if werr := w.WriteChunk(frame); werr != nil {
			return werr
		}
	}
	w.Flush()

	s.Plugins.RunPost(ctx, rc, nil, nil)
	finalResp := conv.Result()
	finalResp.Model = rc.ResolvedModel
	s.Flows.Finish(flowID, finalResp)

	if s.Metrics != nil {
		s.Metrics.RequestsTotal.WithLabelValues(string(rc.SourceProtocol), string(usedProvider), "ok").Inc()
	}
	return nil
}

// runIntercept consults s.Interceptor (if installed) for the flow just
// begun, per spec.md §4.6/scenario 5. ActionAccept and a disabled/nil
// interceptor are no-ops; ActionModify swaps rc.Document for the operator's
// edited request before it is encoded for upstream dispatch; ActionDrop
// fails the flow and returns the terminal error.
func (s *AppState) runIntercept(ctx context.Context, flowID uuid.UUID, rc *pipeline.RequestContext) *errs.Error {
	if s.Interceptor == nil {
		return nil
	}
	dec := s.Flows.RunIntercept(ctx, s.Interceptor, flowID)
	switch dec.Action {
	case flow.ActionModify:
		if dec.ModifiedRequest != nil {
			rc.Document = *dec.ModifiedRequest
		}
	case flow.ActionDrop:
		dropErr := &errs.Error{Code: errs.Request, Message: "request dropped by interceptor", HTTPStatus: 403}
		s.Flows.OnError(flowID, dropErr)
		return dropErr
	}
	return nil
}

// asFlowError normalizes an Attempt/Resilience failure into the
// *errs.Error shape flow.Store.OnError expects.
func asFlowError(err error, provider credential.Kind) *errs.Error {
	if pe, ok := err.(*errs.Error); ok {
		return pe
	}
	return &errs.Error{Code: errs.Unknown, Message: err.Error(), Provider: string(provider)}
}
