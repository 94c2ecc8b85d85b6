// Package pipeline implements the ordered request-handling chain described
// in spec.md §4.7: Auth -> Routing -> Injection -> PluginPre -> Provider ->
// PluginPost -> Telemetry. Grounded on the teacher's
// (github.com/BaSui01/agentflow) llm/middleware/chain.go Handler/Middleware
// shape and llm/router.go's health-based provider selection, generalized
// from a single-process Chain into a fixed named sequence of typed steps,
// and on original_source/server/client_detector.rs for the User-Agent
// classification table.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/protocol"
)

// RequestContext is created at ingress and flows through every pipeline
// step. Per spec.md §3, it is mutated only by steps in sequence and
// read-only after dispatch completes.
type RequestContext struct {
	RequestID uuid.UUID

	StartMono time.Time
	StartWall time.Time

	OriginalModel string
	ResolvedModel string

	Provider     credential.Kind
	CredentialID uuid.UUID

	RetryCount int
	IsStream   bool
	IsDefaultRoute bool
	ClientType   ClientType

	SourceProtocol protocol.Protocol
	TargetProtocol protocol.Protocol

	Document protocol.Document

	PluginContext map[string]any
	Metadata      map[string]string

	dispatched bool
}

// New creates a fresh RequestContext for an inbound request.
func New(sourceProto protocol.Protocol, doc protocol.Document) *RequestContext {
	return &RequestContext{
		RequestID:      uuid.New(),
		StartMono:      time.Now(),
		StartWall:      time.Now(),
		OriginalModel:  doc.Model,
		ResolvedModel:  doc.Model,
		IsStream:       doc.Stream,
		SourceProtocol: sourceProto,
		Document:       doc,
		PluginContext:  make(map[string]any),
		Metadata:       make(map[string]string),
	}
}

// MarkDispatched freezes the context; subsequent mutation is a
// programmer error the caller may choose to assert against.
func (rc *RequestContext) MarkDispatched() { rc.dispatched = true }

// Dispatched reports whether Provider dispatch has begun.
func (rc *RequestContext) Dispatched() bool { return rc.dispatched }

// Elapsed returns the wall-clock duration since the context was created.
func (rc *RequestContext) Elapsed() time.Duration { return time.Since(rc.StartMono) }
