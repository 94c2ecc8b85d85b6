package provider

import (
	"net/http"

	"github.com/tytsxai/proxycast/credential"
)

// NewOpenAIDispatcher builds the Dispatcher for OpenAI-compatible upstreams
// (Bearer API key, JSON body, SSE streaming).
func NewOpenAIDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.OpenAI, client)
}

// NewAnthropicDispatcher builds the Dispatcher for Anthropic-compatible
// upstreams (x-api-key header, JSON body, SSE streaming).
func NewAnthropicDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Anthropic, client)
}

// NewGeminiDispatcher builds the Dispatcher for Gemini/Antigravity
// upstreams (API key query param or OAuth bearer, JSON body, Gemini's own
// streaming chunk shape over SSE).
func NewGeminiDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Gemini, client)
}

// NewAntigravityDispatcher builds the Dispatcher for Antigravity upstreams,
// which share Gemini's wire shape under a distinct OAuth credential kind.
func NewAntigravityDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Antigravity, client)
}

// NewGeminiAPIKeyDispatcher builds the Dispatcher for plain-API-key Gemini
// upstreams, distinct from the OAuth-backed credential.Gemini kind.
func NewGeminiAPIKeyDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.GeminiAPIKey, client)
}

// NewQwenDispatcher builds the Dispatcher for Alibaba Qwen upstreams,
// which speak the OpenAI-compatible wire shape.
func NewQwenDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Qwen, client)
}

// NewIFlowDispatcher builds the Dispatcher for iFlow upstreams, which also
// speak the OpenAI-compatible wire shape.
func NewIFlowDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.IFlow, client)
}

// NewCodexDispatcher builds the Dispatcher for OpenAI Codex upstreams.
func NewCodexDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Codex, client)
}

// NewKiroDispatcher builds the Dispatcher for Amazon CodeWhisperer/Kiro
// upstreams. The wire transport is the same HTTP request/response shape as
// every other provider; what differs is the response body framing, which
// is AWS Event Stream rather than SSE. That framing is opaque to this
// package: NonStreaming and Streaming both hand back raw bytes, and the
// awsstream.Parser (invoked by the pipeline's provider step) does the
// incremental decode.
func NewKiroDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Kiro, client)
}

// NewVertexDispatcher builds the Dispatcher for Google Vertex AI upstreams,
// authenticated via a service-account-signed bearer token rather than a
// static API key.
func NewVertexDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.Vertex, client)
}

// NewClaudeOAuthDispatcher builds the Dispatcher for Anthropic upstreams
// authenticated via Claude.ai OAuth rather than a static API key.
func NewClaudeOAuthDispatcher(client *http.Client) *HTTPDispatcher {
	return NewHTTPDispatcher(credential.ClaudeOAuth, client)
}
