// Package resilience wraps the pipeline with retry, circuit-breaking, and
// credential/provider failover, per spec.md §4.8. Grounded on the
// teacher's (github.com/BaSui01/agentflow) llm/resilience.go
// simpleCircuitBreaker and llm/retry/backoff.go exponential-backoff
// policy, generalized from one process-wide breaker to one breaker per
// (provider, credential) pair.
package resilience

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds retry attempts and backoff delay, per spec.md §4.8.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	MaxDelay   time.Duration
}

// HardMaxRetries is the absolute cap on MaxRetries regardless of
// configuration, per spec.md §4.8 ("hard cap 10").
const HardMaxRetries = 10

// DefaultRetryPolicy returns spec.md §4.8's defaults: 3 retries, 1s base,
// 30s cap (matching the teacher's DefaultRetryPolicy numbers, which also
// satisfy the spec's base>=100ms/max<=120s bounds).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: time.Second, MaxDelay: 30 * time.Second}
}

// Validate rejects a policy that violates spec.md §4.8's hard bounds,
// matching the original desktop app's update_retry_config command (which
// returns an error rather than silently clamping). Called at config-load
// time, before a RetryPolicy ever reaches an Executor.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 || p.MaxRetries > HardMaxRetries {
		return fmt.Errorf("max_retries must be between 0 and %d, got %d", HardMaxRetries, p.MaxRetries)
	}
	if p.Base < 100*time.Millisecond {
		return fmt.Errorf("base_delay must be at least 100ms, got %s", p.Base)
	}
	if p.MaxDelay > 120*time.Second {
		return fmt.Errorf("max_delay must be at most 120s, got %s", p.MaxDelay)
	}
	if p.MaxDelay < p.Base {
		return fmt.Errorf("max_delay (%s) must not be less than base_delay (%s)", p.MaxDelay, p.Base)
	}
	return nil
}

// Normalize clamps the policy to spec.md §4.8's hard bounds: MaxRetries to
// [0, HardMaxRetries], Base to >= 100ms, MaxDelay to <= 120s. Kept as a
// defensive fallback for callers that build a RetryPolicy directly (e.g.
// DefaultConfig, tests) rather than through Config.Validate; config loaded
// from YAML is rejected by Validate instead of silently clamped here.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxRetries > HardMaxRetries {
		p.MaxRetries = HardMaxRetries
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Base < 100*time.Millisecond {
		p.Base = 100 * time.Millisecond
	}
	if p.Base > 120*time.Second {
		p.Base = 120 * time.Second
	}
	if p.MaxDelay > 120*time.Second {
		p.MaxDelay = 120 * time.Second
	}
	if p.MaxDelay < p.Base {
		p.MaxDelay = p.Base
	}
	return p
}

// Delay computes delay = min(max_delay, base * 2^attempt) for the given
// zero-indexed attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
