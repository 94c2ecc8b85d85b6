package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/protocol"
)

// InterceptAction is the operator decision on a pending intercept.
type InterceptAction int

const (
	ActionAccept InterceptAction = iota
	ActionModify
	ActionDrop
)

// Decision carries the operator's response to a pending intercept.
type Decision struct {
	Action          InterceptAction
	ModifiedRequest *protocol.Document
}

// DefaultInterceptTimeout is the default action-on-timeout delay (accept).
const DefaultInterceptTimeout = 30 * time.Second

// pendingIntercept tracks one flow awaiting an operator decision.
type pendingIntercept struct {
	flowID uuid.UUID
	decCh  chan Decision
}

// Interceptor holds a filter and, when it matches a newly begun flow,
// suspends the caller of Store.Begin until the operator decides or a
// timeout elapses (default action: accept), per §4.6.
type Interceptor struct {
	mu      sync.Mutex
	filter  Expr
	enabled bool
	timeout time.Duration
	pending map[uuid.UUID]*pendingIntercept
}

// NewInterceptor creates a disabled interceptor; call SetFilter to arm it.
func NewInterceptor() *Interceptor {
	return &Interceptor{
		timeout: DefaultInterceptTimeout,
		pending: make(map[uuid.UUID]*pendingIntercept),
	}
}

// SetFilter installs the matching expression and enables interception.
func (ic *Interceptor) SetFilter(e Expr) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.filter = e
	ic.enabled = true
}

// Disable turns off interception without discarding the filter.
func (ic *Interceptor) Disable() {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.enabled = false
}

// SetTimeout overrides DefaultInterceptTimeout.
func (ic *Interceptor) SetTimeout(d time.Duration) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.timeout = d
}

// Intercept is called by the pipeline step that invoked Store.Begin. If
// the interceptor is disabled or the filter does not match f, it returns
// immediately with ActionAccept. Otherwise it blocks until Decide is
// called for this flow id or the timeout elapses.
func (ic *Interceptor) Intercept(ctx context.Context, f *LLMFlow) Decision {
	ic.mu.Lock()
	enabled, filter, timeout := ic.enabled, ic.filter, ic.timeout
	ic.mu.Unlock()
	if !enabled || filter.node == nil || !filter.Eval(f) {
		return Decision{Action: ActionAccept}
	}

	p := &pendingIntercept{flowID: f.ID, decCh: make(chan Decision, 1)}
	ic.mu.Lock()
	ic.pending[f.ID] = p
	ic.mu.Unlock()
	priorState := f.State
	f.State = PendingIntercept
	defer func() {
		ic.mu.Lock()
		delete(ic.pending, f.ID)
		ic.mu.Unlock()
		if f.State == PendingIntercept {
			f.State = priorState
		}
	}()

	select {
	case d := <-p.decCh:
		return d
	case <-time.After(timeout):
		return Decision{Action: ActionAccept}
	case <-ctx.Done():
		return Decision{Action: ActionAccept}
	}
}

// Decide delivers an operator decision for a pending intercept. It is a
// no-op if the flow is not currently pending (e.g. it already timed out).
func (ic *Interceptor) Decide(id uuid.UUID, d Decision) bool {
	ic.mu.Lock()
	p, ok := ic.pending[id]
	ic.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case p.decCh <- d:
		return true
	default:
		return false
	}
}

// Pending lists the flow ids currently awaiting a decision.
func (ic *Interceptor) Pending() []uuid.UUID {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(ic.pending))
	for id := range ic.pending {
		ids = append(ids, id)
	}
	return ids
}
