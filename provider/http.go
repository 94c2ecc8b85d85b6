package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tytsxai/proxycast/credential"
)

// HTTPDispatcher is the Dispatcher used for every provider kind that speaks
// plain HTTP JSON (and SSE for streaming) directly: OpenAI-compatible,
// Anthropic-compatible, and Gemini/Antigravity. It differs per kind only in
// which credential.Kind it reports and how the client constructs Request
// (headers, URL), which stays outside this type. Grounded on the teacher's
// llm/providers/openai.go and llm/providers/anthropic.go HTTP call shape,
// generalized to a single reusable struct instead of one struct per vendor.
type HTTPDispatcher struct {
	kind   credential.Kind
	client *http.Client
}

// NewHTTPDispatcher builds an HTTPDispatcher for kind using client (its
// Transport should already be wired via NewTransport for proxy support).
func NewHTTPDispatcher(kind credential.Kind, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDispatcher{kind: kind, client: client}
}

func (d *HTTPDispatcher) Kind() credential.Kind { return d.kind }

func (d *HTTPDispatcher) NonStreaming(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("provider: build request: %w", err)
	}
	httpReq.Header = req.Headers

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("provider: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("provider: read response: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

func (d *HTTPDispatcher) Streaming(ctx context.Context, req Request) (ByteStream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return ByteStream{}, fmt.Errorf("provider: build request: %w", err)
	}
	httpReq.Header = req.Headers

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return ByteStream{}, fmt.Errorf("provider: do request: %w", err)
	}
	return ByteStream{StatusCode: resp.StatusCode, Headers: resp.Header, Body: resp.Body}, nil
}
