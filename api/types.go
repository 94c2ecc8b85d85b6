// Package api hosts the HTTP ingress surface named in spec.md §6: the four
// chat-protocol endpoints, the static model list, and the AppState that
// wires a request through the full Auth -> Routing -> Injection ->
// PluginPre -> Provider -> PluginPost -> Telemetry pipeline (spec.md §4.7).
// Grounded on the teacher's (github.com/BaSui01/agentflow) api/types.go
// envelope and api/handlers/* handler shape; routed with
// github.com/go-chi/chi/v5 (borrowed from the pack's jordigilh-kubernaut
// repo, since the teacher's own bare-mux handlers don't need to host four
// structurally different ingress shapes the way this module does).
package api

import "time"

// Response is the canonical envelope every handler writes, mirroring the
// teacher's api/types.go Response struct.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorInfo is the JSON shape of a failed Response, carrying both the
// technical detail and (via Message) the localized string from
// errs.Error.UserMessage.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status"`
}

// ModelInfo is one entry of the GET /v1/models listing.
type ModelInfo struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	OwnedBy  string `json:"owned_by"`
	Provider string `json:"provider"`
}
