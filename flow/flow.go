// Package flow implements the FlowMonitor observability subsystem: the
// LLMFlow record, its bounded in-memory store with subscriber fan-out, the
// filter expression language, the interceptor, and the replayer. Grounded
// on original_source/flow_monitor/{mod,models,monitor}.rs, generalized to
// the fuller surface (batch ops, bookmarks, diff, enhanced stats, export)
// that distillation dropped from spec.md, following the teacher's
// (github.com/BaSui01/agentflow) one-focused-file-per-concern layout
// (llm/router_*.go, llm/resilient_provider*.go).
package flow

import (
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
	"github.com/tytsxai/proxycast/protocol"
)

// State is an LLMFlow's lifecycle state.
type State string

const (
	Pending          State = "pending"
	PendingIntercept State = "pending_intercept"
	Streaming        State = "streaming"
	Completed        State = "completed"
	Failed           State = "failed"
)

// Type discriminates the kind of interaction a flow captured.
type Type string

const (
	TypeChat       Type = "chat"
	TypeCompletion Type = "completion"
	TypeEmbedding  Type = "embedding"
	TypeReplay     Type = "replay"
)

// Timestamps records the lifecycle instants named in spec.md §3.
type Timestamps struct {
	Created     time.Time
	RequestSent time.Time
	FirstByte   time.Time
	Completed   time.Time
}

// StreamInfo holds the per-stream metrics required by §8's testable
// properties (total_bytes = sum(chunk.len()), chunk_count, ttfb <=
// duration, min <= avg <= max whenever chunk_count >= 1).
type StreamInfo struct {
	ChunkCount          int
	TotalBytes          int64
	TTFBMillis          int64
	DurationMillis      int64
	MinChunkSize        int
	MaxChunkSize        int
	ThrottleCount       int
	ThrottledEventCount int
}

// AvgChunkSize returns TotalBytes/ChunkCount, or 0 when no chunks arrived.
func (s StreamInfo) AvgChunkSize() float64 {
	if s.ChunkCount == 0 {
		return 0
	}
	return float64(s.TotalBytes) / float64(s.ChunkCount)
}

// RoutingMeta records the provider/credential/routing decision made for
// this flow's request.
type RoutingMeta struct {
	Provider        credential.Kind
	CredentialID    uuid.UUID
	OriginalModel   string
	ResolvedModel   string
	IsDefaultRoute  bool
	RetryCount      int
	ClientType      string
}

// Annotations are operator-facing metadata that never affects routing.
type Annotations struct {
	Starred bool
	Tags    []string
	Notes   string
	Extra   map[string]string // e.g. "type":"replay", "replay_of":"<uuid>"
}

// HasTag reports whether the flow carries the given tag.
func (a Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// LLMFlow is the observability record for one request/response pair, per
// spec.md §3.
type LLMFlow struct {
	ID    uuid.UUID
	State State
	Type  Type

	Timestamps Timestamps

	OriginalRequest protocol.Document
	ResolvedRequest protocol.Document
	Response        protocol.Response

	Stream  StreamInfo
	Routing RoutingMeta

	Error *errs.Error

	Annotations Annotations

	ParseErrorCount int

	// thresholdsFired tracks which (kind) thresholds have already emitted
	// a ThresholdWarning for this flow, per §4.6's "exactly once per
	// threshold per flow".
	thresholdsFired map[string]bool
}

// LatencyMillis is wall-clock time from Created to Completed (or now, if
// still in flight).
func (f *LLMFlow) LatencyMillis() int64 {
	end := f.Timestamps.Completed
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(f.Timestamps.Created).Milliseconds()
}

// HasError reports whether the flow ended in failure.
func (f *LLMFlow) HasError() bool { return f.Error != nil }

// HasToolCall reports whether the reconstructed response contains a tool
// call part.
func (f *LLMFlow) HasToolCall() bool {
	for _, p := range f.Response.Message.Parts {
		if p.Kind == protocol.PartToolCall {
			return true
		}
	}
	return false
}

// HasThinking reports whether the reconstructed response contains a
// thinking part.
func (f *LLMFlow) HasThinking() bool {
	for _, p := range f.Response.Message.Parts {
		if p.Kind == protocol.PartThinking {
			return true
		}
	}
	return false
}

func (f *LLMFlow) markThresholdFired(kind string) bool {
	if f.thresholdsFired == nil {
		f.thresholdsFired = make(map[string]bool)
	}
	if f.thresholdsFired[kind] {
		return false
	}
	f.thresholdsFired[kind] = true
	return true
}
