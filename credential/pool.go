package credential

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrDuplicateUUID is returned by Add when the UUID is already registered.
	ErrDuplicateUUID = errors.New("credential: duplicate uuid")
	// ErrNotFound is returned by mutators given an unknown UUID.
	ErrNotFound = errors.New("credential: not found")
	// ErrEmptyPool is returned by Select when the pool holds no credentials.
	ErrEmptyPool = errors.New("credential: pool is empty")
)

// DefaultFailureThreshold is the consecutive-failure count (N) at which a
// credential transitions Active -> Unhealthy.
const DefaultFailureThreshold = 3

// Pool is a concurrent, per-provider registry of credentials with a
// round-robin-skip-unhealthy selection policy. Every mutation runs inside
// a single critical section; readers (List, Select) never block a mutator
// for longer than one such section.
type Pool struct {
	mu               sync.RWMutex
	kind             Kind
	order            []uuid.UUID // insertion order, used for round-robin cursor
	byID             map[uuid.UUID]*Credential
	limiters         map[uuid.UUID]*rate.Limiter
	cursor           int
	failureThreshold int
	logger           *zap.Logger
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithFailureThreshold overrides DefaultFailureThreshold.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.failureThreshold = n
		}
	}
}

// WithLogger attaches a zap logger; a nop logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool creates an empty Pool for one provider Kind.
func NewPool(kind Kind, opts ...Option) *Pool {
	p := &Pool{
		kind:             kind,
		byID:             make(map[uuid.UUID]*Credential),
		limiters:         make(map[uuid.UUID]*rate.Limiter),
		failureThreshold: DefaultFailureThreshold,
		logger:           zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Kind returns the provider kind this pool serves.
func (p *Pool) Kind() Kind { return p.kind }

// Add registers a new credential. Returns ErrDuplicateUUID if the UUID is
// already present.
func (p *Pool) Add(c *Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUUID, c.ID)
	}
	p.byID[c.ID] = c
	p.order = append(p.order, c.ID)
	return nil
}

// SetRateLimit attaches a soft per-credential QPS guard (see SPEC_FULL.md
// §4.1). A zero or negative rps clears any existing limiter.
func (p *Pool) SetRateLimit(id uuid.UUID, rps float64, burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rps <= 0 {
		delete(p.limiters, id)
		return
	}
	p.limiters[id] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Remove deletes a credential from the pool. Unknown UUIDs are a no-op.
func (p *Pool) Remove(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byID, id)
	delete(p.limiters, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the credential with the given UUID.
func (p *Pool) Get(id uuid.UUID) (Credential, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byID[id]
	if !ok {
		return Credential{}, false
	}
	return *c, true
}

// List returns a snapshot of all credentials in insertion order.
func (p *Pool) List() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Credential, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.byID[id])
	}
	return out
}

// Len returns the number of registered credentials.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Select returns the next credential per the round-robin-skip-unhealthy
// policy: Active credentials are tried in round-robin order, skipping any
// that are Unhealthy or currently rate-limited. If every credential is
// Unhealthy, the one with the oldest LastFailure is returned as a
// "tentative" pick and a warning is logged — a subsequent success
// restores it to Active.
func (p *Pool) Select() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.order)
	if n == 0 {
		return Credential{}, ErrEmptyPool
	}

	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		id := p.order[idx]
		c := p.byID[id]
		if c.Status.Unhealthy {
			continue
		}
		if lim, ok := p.limiters[id]; ok && !lim.Allow() {
			continue
		}
		p.cursor = (idx + 1) % n
		return *c, nil
	}

	// All Active candidates are unhealthy or rate-limited: fall back to
	// the oldest-failed credential and warn.
	var oldest *Credential
	for _, id := range p.order {
		c := p.byID[id]
		if oldest == nil || c.Stats.LastFailure.Before(oldest.Stats.LastFailure) {
			oldest = c
		}
	}
	p.logger.Warn("credential pool exhausted, returning tentative pick",
		zap.String("kind", string(p.kind)),
		zap.String("credential_id", oldest.ID.String()),
	)
	return *oldest, nil
}

// RecordSuccess resets the consecutive-failure counter, folds the latency
// sample into the running average, and restores Unhealthy -> Active.
func (p *Pool) RecordSuccess(id uuid.UUID, latencyMS float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Stats.recordLatency(latencyMS)
	c.Stats.Total++
	c.Stats.Success++
	c.Stats.ConsecutiveFailure = 0
	c.Stats.LastUsed = time.Now()
	if c.Status.Unhealthy {
		c.Status = Active()
	}
	return nil
}

// RecordFailure increments the consecutive-failure counter and, once it
// reaches the configured threshold, transitions the credential to
// Unhealthy with the given reason.
func (p *Pool) RecordFailure(id uuid.UUID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now()
	c.Stats.Total++
	c.Stats.Failure++
	c.Stats.ConsecutiveFailure++
	c.Stats.LastUsed = now
	c.Stats.LastFailure = now
	if c.Stats.ConsecutiveFailure >= p.failureThreshold && !c.Status.Unhealthy {
		c.Status = Status{Unhealthy: true, Reason: reason}
		p.logger.Warn("credential marked unhealthy",
			zap.String("kind", string(p.kind)),
			zap.String("credential_id", id.String()),
			zap.Int("consecutive_failures", c.Stats.ConsecutiveFailure),
			zap.String("reason", reason),
		)
	}
	return nil
}

// MarkUnhealthy force-transitions a credential to Unhealthy, e.g. on an
// authentication failure that should not wait for the failure threshold.
func (p *Pool) MarkUnhealthy(id uuid.UUID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Status = Status{Unhealthy: true, Reason: reason}
	c.Stats.LastFailure = time.Now()
	return nil
}

// MarkActive force-restores a credential to Active, e.g. operator override.
func (p *Pool) MarkActive(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Status = Active()
	c.Stats.ConsecutiveFailure = 0
	return nil
}

// RecoverAll force-transitions every Unhealthy credential back to Active.
// Intended for operator use (spec.md §4.1).
func (p *Pool) RecoverAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.order {
		c := p.byID[id]
		if c.Status.Unhealthy {
			c.Status = Active()
			c.Stats.ConsecutiveFailure = 0
			n++
		}
	}
	return n
}
