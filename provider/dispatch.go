// Package provider implements the per-provider-kind dispatch surface
// described in spec.md §9 "Dynamic dispatch of providers": each provider
// kind exposes the same Dispatch surface split into two distinct methods,
// non-streaming and streaming, "so neither code-path depends on runtime
// feature detection." Grounded on the teacher's (github.com/BaSui01/agentflow)
// llm/provider.go Provider interface shape and llm/providers/* per-vendor
// implementations, generalized from agentflow's many chat-completion
// vendors to ProxyCast's credential.Kind taxonomy (OpenAI-compatible,
// Anthropic-compatible, CodeWhisperer/Kiro, Gemini/Antigravity).
package provider

import (
	"context"
	"io"
	"net/http"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// Request is the fully-prepared, already-transcoded upstream request body
// plus the HTTP plumbing a Dispatcher needs.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is a completed non-streaming upstream call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ByteStream is a streaming upstream call: callers read raw provider-native
// bytes from Body until io.EOF, then must call Close.
type ByteStream struct {
	StatusCode int
	Headers    http.Header
	Body       io.ReadCloser
}

// Dispatcher is the per-provider-kind dispatch surface. NonStreaming and
// Streaming are distinct methods (not one method branching on a flag) per
// spec.md §9.
type Dispatcher interface {
	Kind() credential.Kind
	NonStreaming(ctx context.Context, req Request) (Response, error)
	Streaming(ctx context.Context, req Request) (ByteStream, error)
}

// Registry maps a credential.Kind to its Dispatcher.
type Registry struct {
	byKind map[credential.Kind]Dispatcher
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[credential.Kind]Dispatcher)}
}

// Register installs d under its own Kind().
func (r *Registry) Register(d Dispatcher) {
	r.byKind[d.Kind()] = d
}

// Get returns the Dispatcher for kind, or a Configuration error if none is
// registered.
func (r *Registry) Get(kind credential.Kind) (Dispatcher, error) {
	d, ok := r.byKind[kind]
	if !ok {
		return nil, &errs.Error{Code: errs.Configuration, Message: "no dispatcher registered for provider " + string(kind)}
	}
	return d, nil
}
