package flow

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/errs"
	"github.com/tytsxai/proxycast/protocol"
)

// EventKind discriminates a subscriber-stream Event's payload, per §4.6.
type EventKind string

const (
	EventFlowStarted       EventKind = "flow_started"
	EventFlowUpdated       EventKind = "flow_updated"
	EventFlowCompleted     EventKind = "flow_completed"
	EventFlowFailed        EventKind = "flow_failed"
	EventThresholdWarning  EventKind = "threshold_warning"
	EventNotification      EventKind = "notification"
	EventRequestRateUpdate EventKind = "request_rate_update"
)

// Event is one item on the FlowMonitor subscriber stream.
type Event struct {
	Kind      EventKind
	FlowID    uuid.UUID
	Summary   map[string]any
	Delta     map[string]any
	Error     *errs.Error
	Threshold string
	Rate      float64
	Count     int64
}

// Thresholds configures the latency/token limits that fire a
// ThresholdWarning exactly once per threshold per flow (§4.6).
type Thresholds struct {
	LatencyMillis int64
	TotalTokens   int
}

// DefaultCoalesceInterval is the default FlowUpdated coalescing window.
const DefaultCoalesceInterval = 100 * time.Millisecond

// DefaultCapacity bounds the in-memory FIFO-evicted flow store.
const DefaultCapacity = 10000

// EvictionSink receives a flow evicted from the in-memory store so it can
// be appended to durable storage (see flow/persist.go).
type EvictionSink interface {
	Persist(f *LLMFlow)
}

// Store holds in-flight and completed flows in a bounded, FIFO-evicted
// in-memory map and fans out lifecycle events to subscribers. Per-flow
// mutation takes a per-flow lock; map-level add/remove is serialized by mu
// (the "Many readers, per-flow lock" / "map-level add/remove serialized"
// row of spec.md §5's shared-resource table).
type Store struct {
	mu       sync.RWMutex
	flows    map[uuid.UUID]*entry
	order    *list.List // FIFO eviction order, elements are uuid.UUID
	capacity int

	coalesce   time.Duration
	thresholds Thresholds
	sink       EvictionSink

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int

	lastUpdateSent map[uuid.UUID]time.Time
}

type entry struct {
	mu   sync.Mutex
	flow *LLMFlow
	elem *list.Element
}

// Option configures a Store at construction.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithCoalesceInterval overrides DefaultCoalesceInterval.
func WithCoalesceInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.coalesce = d
		}
	}
}

// WithThresholds installs the latency/token thresholds that trigger
// ThresholdWarning events.
func WithThresholds(t Thresholds) Option {
	return func(s *Store) { s.thresholds = t }
}

// WithEvictionSink installs the durable-storage sink invoked when a
// completed flow is evicted from memory.
func WithEvictionSink(sink EvictionSink) Option {
	return func(s *Store) { s.sink = sink }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		flows:          make(map[uuid.UUID]*entry),
		order:          list.New(),
		capacity:       DefaultCapacity,
		coalesce:       DefaultCoalesceInterval,
		subscribers:    make(map[int]chan Event),
		lastUpdateSent: make(map[uuid.UUID]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Begin creates a Pending flow and returns its id.
func (s *Store) Begin(req protocol.Document, routing RoutingMeta, typ Type) uuid.UUID {
	f := &LLMFlow{
		ID:              uuid.New(),
		State:           Pending,
		Type:            typ,
		Timestamps:      Timestamps{Created: time.Now()},
		OriginalRequest: req,
		ResolvedRequest: req,
		Routing:         routing,
	}
	s.insert(f)
	s.publish(Event{Kind: EventFlowStarted, FlowID: f.ID, Summary: s.summary(f)})
	return f.ID
}

func (s *Store) insert(f *LLMFlow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem := s.order.PushBack(f.ID)
	s.flows[f.ID] = &entry{flow: f, elem: elem}
	s.evictIfNeeded()
}

func (s *Store) evictIfNeeded() {
	for s.order.Len() > s.capacity {
		front := s.order.Front()
		if front == nil {
			return
		}
		id := front.Value.(uuid.UUID)
		e, ok := s.flows[id]
		if ok && s.sink != nil && (e.flow.State == Completed || e.flow.State == Failed) {
			s.sink.Persist(e.flow)
		}
		s.order.Remove(front)
		delete(s.flows, id)
	}
}

// Get returns a copy of the flow with the given id.
func (s *Store) Get(id uuid.UUID) (LLMFlow, bool) {
	s.mu.RLock()
	e, ok := s.flows[id]
	s.mu.RUnlock()
	if !ok {
		return LLMFlow{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.flow, true
}

func (s *Store) withFlow(id uuid.UUID, fn func(f *LLMFlow)) bool {
	s.mu.RLock()
	e, ok := s.flows[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	fn(e.flow)
	e.mu.Unlock()
	return true
}

// OnChunk appends a semantic delta to the flow's reconstructed response,
// transitions Pending -> Streaming on the first chunk, updates stream
// metrics, checks thresholds, and emits a (possibly coalesced)
// FlowUpdated event.
func (s *Store) OnChunk(id uuid.UUID, deltaText string, chunkBytes int) {
	var delta map[string]any
	var warnings []Event
	s.withFlow(id, func(f *LLMFlow) {
		if f.State == Pending {
			f.State = Streaming
			f.Timestamps.FirstByte = time.Now()
			f.Stream.TTFBMillis = f.Timestamps.FirstByte.Sub(f.Timestamps.Created).Milliseconds()
		}
		f.Response.Message.Parts = append(f.Response.Message.Parts, protocol.Part{Kind: protocol.PartText, Text: deltaText})
		f.Stream.ChunkCount++
		f.Stream.TotalBytes += int64(chunkBytes)
		if f.Stream.MinChunkSize == 0 || chunkBytes < f.Stream.MinChunkSize {
			f.Stream.MinChunkSize = chunkBytes
		}
		if chunkBytes > f.Stream.MaxChunkSize {
			f.Stream.MaxChunkSize = chunkBytes
		}
		delta = map[string]any{"content": deltaText}
		warnings = s.checkThresholds(f)
	})
	for _, ev := range warnings {
		s.publish(ev)
	}
	if delta != nil {
		s.publishCoalescedUpdate(id, delta)
	}
}

// checkThresholds returns the ThresholdWarning events for thresholds f has
// newly crossed; callers publish them after releasing the flow's lock.
func (s *Store) checkThresholds(f *LLMFlow) []Event {
	var out []Event
	if s.thresholds.LatencyMillis > 0 && f.LatencyMillis() >= s.thresholds.LatencyMillis {
		if f.markThresholdFired("latency") {
			out = append(out, Event{Kind: EventThresholdWarning, FlowID: f.ID, Threshold: "latency"})
		}
	}
	total := f.Response.Usage.TotalTokens
	if s.thresholds.TotalTokens > 0 && total >= s.thresholds.TotalTokens {
		if f.markThresholdFired("tokens") {
			out = append(out, Event{Kind: EventThresholdWarning, FlowID: f.ID, Threshold: "tokens"})
		}
	}
	return out
}

// OnError transitions the flow to Failed and emits the (never-throttled)
// terminal event.
func (s *Store) OnError(id uuid.UUID, err *errs.Error) {
	var summary map[string]any
	s.withFlow(id, func(f *LLMFlow) {
		f.State = Failed
		f.Error = err
		f.Timestamps.Completed = time.Now()
		f.Stream.DurationMillis = f.LatencyMillis()
		summary = s.summary(f)
	})
	s.publish(Event{Kind: EventFlowFailed, FlowID: id, Error: err, Summary: summary})
}

// Finish transitions the flow to Completed, applies the final response
// metadata, and emits the (never-throttled) terminal event.
func (s *Store) Finish(id uuid.UUID, resp protocol.Response) {
	var summary map[string]any
	var warnings []Event
	s.withFlow(id, func(f *LLMFlow) {
		f.State = Completed
		f.Response = resp
		f.Timestamps.Completed = time.Now()
		f.Stream.DurationMillis = f.LatencyMillis()
		warnings = s.checkThresholds(f)
		summary = s.summary(f)
	})
	for _, ev := range warnings {
		s.publish(ev)
	}
	s.publish(Event{Kind: EventFlowCompleted, FlowID: id, Summary: summary})
}

// RunIntercept looks up the flow, hands a locked pointer to ic so it can
// flip the flow's state to PendingIntercept and back, and returns the
// operator's decision. It exists so the interceptor never needs direct
// access to the store's internal locking.
func (s *Store) RunIntercept(ctx context.Context, ic *Interceptor, id uuid.UUID) Decision {
	var dec Decision
	found := s.withFlow(id, func(f *LLMFlow) {
		dec = ic.Intercept(ctx, f)
	})
	if !found {
		return Decision{Action: ActionAccept}
	}
	return dec
}

// RecordParseError increments the flow's parse_error_count without
// affecting its state (§7: parse errors are not fatal mid-stream).
func (s *Store) RecordParseError(id uuid.UUID) {
	s.withFlow(id, func(f *LLMFlow) { f.ParseErrorCount++ })
}

func (s *Store) summary(f *LLMFlow) map[string]any {
	return map[string]any{
		"id":       f.ID.String(),
		"state":    string(f.State),
		"provider": string(f.Routing.Provider),
		"model":    f.Routing.ResolvedModel,
	}
}

// --- Subscriptions --------------------------------------------------------

// Subscribe registers a new bounded subscriber channel; slow subscribers
// drop events and increment ThrottledEventCount on the relevant flow
// rather than blocking the producer (§5's "Subscribers channel" row).
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
		close(ch)
	}
	return ch, cancel
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.withFlow(ev.FlowID, func(f *LLMFlow) { f.Stream.ThrottledEventCount++ })
			_ = id
		}
	}
}

// publishCoalescedUpdate only emits a FlowUpdated event once per
// coalesce-interval per flow, per §4.6.
func (s *Store) publishCoalescedUpdate(id uuid.UUID, delta map[string]any) {
	s.mu.Lock()
	last, seen := s.lastUpdateSent[id]
	now := time.Now()
	if seen && now.Sub(last) < s.coalesce {
		s.mu.Unlock()
		s.withFlow(id, func(f *LLMFlow) { f.Stream.ThrottledEventCount++ })
		return
	}
	s.lastUpdateSent[id] = now
	s.mu.Unlock()
	s.publish(Event{Kind: EventFlowUpdated, FlowID: id, Delta: delta})
}

// PublishRequestRate emits a non-flow-scoped RequestRateUpdate event, used
// by telemetry to report overall throughput to dashboards.
func (s *Store) PublishRequestRate(rate float64, count int64) {
	s.publish(Event{Kind: EventRequestRateUpdate, Rate: rate, Count: count})
}
