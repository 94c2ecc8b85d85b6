package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// Attempt performs one dispatch against cred and reports the ProviderError
// (or nil) that resulted, for the Executor to classify.
type Attempt func(ctx context.Context, cred credential.Credential) error

// Config bundles the knobs described in spec.md §4.8.
type Config struct {
	Retry         RetryPolicy
	Breaker       BreakerConfig
	SwitchOnQuota bool
}

// DefaultConfig returns spec.md §4.8's defaults.
func DefaultConfig() Config {
	return Config{Retry: DefaultRetryPolicy(), Breaker: DefaultBreakerConfig(), SwitchOnQuota: true}
}

// Executor runs Attempts with retry, per-(provider,credential) circuit
// breaking, and credential/provider failover, per spec.md §4.8.
type Executor struct {
	config    Config
	breakers  *Registry
	switchLog *SwitchLog
	logger    *zap.Logger
}

// NewExecutor builds an Executor. A zero Config yields DefaultConfig.
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	if config.Retry.MaxRetries == 0 && config.Retry.Base == 0 {
		config = DefaultConfig()
	}
	config.Retry = config.Retry.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		config:    config,
		breakers:  NewRegistry(config.Breaker, logger),
		switchLog: NewSwitchLog(),
		logger:    logger,
	}
}

// SwitchLog exposes the bounded failover history.
func (e *Executor) SwitchLog() *SwitchLog { return e.switchLog }

// Run executes attempt against pools for the resolved model, in the
// precedence order given by providers. It retries transient failures on
// the selected credential (per RetryPolicy), fails over to the next
// credential on a non-retryable auth error or exhausted retry budget, and
// fails over to the next configured provider once a provider's pool is
// entirely Unhealthy. It returns the provider kind and credential that
// ultimately succeeded, or the last error observed.
func (e *Executor) Run(ctx context.Context, providers []credential.Kind, pools map[credential.Kind]*credential.Pool, attempt Attempt) (credential.Kind, credential.Credential, error) {
	var lastErr error
	var lastKind credential.Kind

	for pIdx, kind := range providers {
		pool, ok := pools[kind]
		if !ok {
			continue
		}

		cred, selErr := pool.Select()
		if selErr != nil {
			lastErr = selErr
			continue
		}
		lastKind = kind

		err := e.runOnCredential(ctx, kind, pool, cred, attempt)
		if err == nil {
			return kind, cred, nil
		}
		lastErr = err

		pe := asProviderError(err)
		failureType := "unknown"
		if pe != nil {
			failureType = string(pe.Code)
		}

		quotaSwitch := e.config.SwitchOnQuota && pe != nil && pe.Code == errs.QuotaExceeded
		allUnhealthy := allCredentialsUnhealthy(pool)

		if (allUnhealthy || quotaSwitch) && pIdx+1 < len(providers) {
			e.switchLog.Append(SwitchEntry{
				From:        string(kind),
				To:          string(providers[pIdx+1]),
				FailureType: failureType,
				Timestamp:   time.Now(),
			})
			e.logger.Warn("failing over to next provider",
				zap.String("from", string(kind)),
				zap.String("to", string(providers[pIdx+1])),
				zap.String("failure_type", failureType),
			)
			continue
		}
		if allUnhealthy {
			// No further provider configured; surface the last error.
			break
		}
		// Pool still has healthy candidates but this credential's retry
		// budget is exhausted and it was non-retryable or failed over
		// already: the caller already saw one retry pass inside
		// runOnCredential, which in turn retried once with a second
		// credential from the same pool.
		break
	}

	if lastErr == nil {
		lastErr = errors.New("resilience: no provider configured")
	}
	return lastKind, credential.Credential{}, lastErr
}

// runOnCredential retries attempt against cred under its breaker, then
// (on a non-retryable auth error or exhausted budget) fails over once to
// the next credential selected from the same pool.
func (e *Executor) runOnCredential(ctx context.Context, kind credential.Kind, pool *credential.Pool, cred credential.Credential, attempt Attempt) error {
	breaker := e.breakers.Get(breakerKey(kind, cred.ID))

	err := breaker.Call(ctx, func() error {
		return e.retryLoop(ctx, pool, cred, attempt)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}

	pe := asProviderError(err)
	if pe != nil && pe.Code == errs.AuthenticationFailure {
		_ = pool.MarkUnhealthy(cred.ID, pe.Message)
	}

	// One credential-level failover: pick a fresh credential from the
	// same pool and try once more, per spec.md §4.8.
	next, selErr := pool.Select()
	if selErr != nil || next.ID == cred.ID {
		return err
	}
	e.switchLog.Append(SwitchEntry{
		From:        cred.ID.String(),
		To:          next.ID.String(),
		FailureType: failureTypeOf(pe),
		Timestamp:   time.Now(),
	})
	nextBreaker := e.breakers.Get(breakerKey(kind, next.ID))
	return nextBreaker.Call(ctx, func() error {
		return e.retryLoop(ctx, pool, next, attempt)
	})
}

// retryLoop runs attempt with exponential backoff while the returned
// error is retryable and the budget remains, recording credential
// success/failure as it goes.
func (e *Executor) retryLoop(ctx context.Context, pool *credential.Pool, cred credential.Credential, attempt Attempt) error {
	var lastErr error
	for i := 0; i <= e.config.Retry.MaxRetries; i++ {
		start := time.Now()
		err := attempt(ctx, cred)
		if err == nil {
			_ = pool.RecordSuccess(cred.ID, float64(time.Since(start).Milliseconds()))
			return nil
		}
		lastErr = err

		pe := asProviderError(err)
		reason := err.Error()
		if pe != nil {
			reason = pe.Message
		}
		_ = pool.RecordFailure(cred.ID, reason)

		if pe == nil || !pe.Retryable() {
			return err
		}
		if i == e.config.Retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.config.Retry.Delay(i)):
		}
	}
	return lastErr
}

func breakerKey(kind credential.Kind, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s", kind, id)
}

func asProviderError(err error) *errs.Error {
	var pe *errs.Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

func failureTypeOf(pe *errs.Error) string {
	if pe == nil {
		return "unknown"
	}
	return string(pe.Code)
}

func allCredentialsUnhealthy(pool *credential.Pool) bool {
	for _, c := range pool.List() {
		if !c.Status.Unhealthy {
			return false
		}
	}
	return true
}
