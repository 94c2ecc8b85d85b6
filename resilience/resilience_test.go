package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

func newTestCredential(kind credential.Kind) credential.Credential {
	return credential.Credential{ID: uuid.New(), Kind: kind, Payload: credential.APIKey{Key: "k"}}
}

func TestRetryLoopRetriesTransientThenSucceeds(t *testing.T) {
	pool := credential.NewPool(credential.OpenAI)
	cred := newTestCredential(credential.OpenAI)
	if err := pool.Add(&cred); err != nil {
		t.Fatal(err)
	}

	exec := NewExecutor(Config{Retry: RetryPolicy{MaxRetries: 3, Base: time.Millisecond, MaxDelay: 10 * time.Millisecond}, Breaker: DefaultBreakerConfig()}, nil)

	attempts := 0
	err := exec.retryLoop(context.Background(), pool, cred, func(ctx context.Context, c credential.Credential) error {
		attempts++
		if attempts < 3 {
			return &errs.Error{Code: errs.Network, Message: "timeout"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryLoopStopsOnNonRetryable(t *testing.T) {
	pool := credential.NewPool(credential.OpenAI)
	cred := newTestCredential(credential.OpenAI)
	_ = pool.Add(&cred)

	exec := NewExecutor(DefaultConfig(), nil)
	attempts := 0
	err := exec.retryLoop(context.Background(), pool, cred, func(ctx context.Context, c credential.Credential) error {
		attempts++
		return &errs.Error{Code: errs.AuthenticationFailure, Message: "bad key"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRunFailsOverToNextProviderWhenPoolExhausted(t *testing.T) {
	openaiPool := credential.NewPool(credential.OpenAI, credential.WithFailureThreshold(1))
	openaiCred := newTestCredential(credential.OpenAI)
	_ = openaiPool.Add(&openaiCred)

	anthropicPool := credential.NewPool(credential.Anthropic)
	anthropicCred := newTestCredential(credential.Anthropic)
	_ = anthropicPool.Add(&anthropicCred)

	pools := map[credential.Kind]*credential.Pool{
		credential.OpenAI:    openaiPool,
		credential.Anthropic: anthropicPool,
	}

	exec := NewExecutor(Config{
		Retry:   RetryPolicy{MaxRetries: 0, Base: time.Millisecond, MaxDelay: time.Millisecond},
		Breaker: DefaultBreakerConfig(),
	}, nil)

	kind, cred, err := exec.Run(context.Background(), []credential.Kind{credential.OpenAI, credential.Anthropic}, pools,
		func(ctx context.Context, c credential.Credential) error {
			if c.Kind == credential.OpenAI {
				return &errs.Error{Code: errs.AuthenticationFailure, Message: "bad key"}
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected failover to anthropic to succeed, got %v", err)
	}
	if kind != credential.Anthropic {
		t.Fatalf("expected anthropic, got %s", kind)
	}
	if cred.ID != anthropicCred.ID {
		t.Fatalf("expected anthropic credential, got %s", cred.ID)
	}
	if len(exec.SwitchLog().Recent()) == 0 {
		t.Fatal("expected a switch-log entry for the provider failover")
	}
}

func TestSwitchLogBoundedTo100(t *testing.T) {
	log := NewSwitchLog()
	for i := 0; i < 150; i++ {
		log.Append(SwitchEntry{From: "a", To: "b", FailureType: "network", Timestamp: time.Now()})
	}
	if got := len(log.Recent()); got != switchLogCapacity {
		t.Fatalf("expected log capped at %d, got %d", switchLogCapacity, got)
	}
}

func TestBreakerOpensAfterFailureThresholdAndHalfOpensAfterTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: 10 * time.Millisecond}, nil)
	boom := func() error { return context.DeadlineExceeded }

	_ = b.Call(context.Background(), boom)
	_ = b.Call(context.Background(), boom)
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold failures, got %s", b.State())
	}
	if err := b.Call(context.Background(), func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen while still within timeout, got %v", err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := b.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected half-open call to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success threshold met, got %s", b.State())
	}
}
