package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is a circuit breaker's position in the closed/open/half-open
// state machine, named the way the teacher names circuitbreaker.State.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned by Breaker.Call while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// BreakerConfig configures a single breaker's thresholds.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultBreakerConfig mirrors the teacher's DefaultCircuitBreakerConfig.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// Breaker is a closed -> open -> half-open circuit breaker for one
// (provider, credential) pair.
type Breaker struct {
	config          BreakerConfig
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	mu              sync.Mutex
	logger          *zap.Logger
}

// NewBreaker builds a Breaker with the given config (zero value yields
// DefaultBreakerConfig).
func NewBreaker(config BreakerConfig, logger *zap.Logger) *Breaker {
	if config.FailureThreshold == 0 {
		config = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{config: config, logger: logger}
}

// State reports the breaker's current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Call runs fn under the breaker's protection, transitioning Open ->
// HalfOpen once config.Timeout has elapsed since the last failure.
func (b *Breaker) Call(ctx context.Context, fn func() error) error {
	b.mu.Lock()
	state := State(b.state.Load())
	if state == StateOpen {
		if time.Since(time.Unix(0, b.lastFailureTime.Load())) > b.config.Timeout {
			b.state.Store(int32(StateHalfOpen))
			b.successes.Store(0)
		} else {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	b.mu.Unlock()

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	failures := b.failures.Add(1)
	b.lastFailureTime.Store(time.Now().UnixNano())
	if failures >= int32(b.config.FailureThreshold) {
		b.state.Store(int32(StateOpen))
		b.logger.Warn("circuit breaker opened", zap.Int32("failures", failures))
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if State(b.state.Load()) == StateHalfOpen {
		successes := b.successes.Add(1)
		if successes >= int32(b.config.SuccessThreshold) {
			b.state.Store(int32(StateClosed))
			b.failures.Store(0)
			b.logger.Info("circuit breaker closed")
		}
		return
	}
	b.failures.Store(0)
}

// Registry holds one Breaker per (provider, credential) pair, created
// lazily on first use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   BreakerConfig
	logger   *zap.Logger
}

// NewRegistry builds a Registry that lazily constructs breakers with
// config for every new (provider, credential) key.
func NewRegistry(config BreakerConfig, logger *zap.Logger) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), config: config, logger: logger}
}

// Get returns the Breaker for key (typically "<provider>/<credential-id>"),
// creating one if this is the first call for that key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(r.config, r.logger)
		r.breakers[key] = b
	}
	return b
}
