package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultPluginTimeout bounds how long a single plugin hook may run before
// its result is discarded, per spec.md §4.7.
const DefaultPluginTimeout = 5 * time.Second

// RequestHook mutates the request payload before provider dispatch.
type RequestHook interface {
	Name() string
	OnRequest(ctx context.Context, rc *RequestContext, params map[string]any) (map[string]any, error)
}

// ResponseHook mutates the response payload after provider dispatch.
type ResponseHook interface {
	Name() string
	OnResponse(ctx context.Context, rc *RequestContext, resp map[string]any) (map[string]any, error)
}

// PluginStep invokes a list of hooks, each under its own timeout; a
// timed-out or erroring hook is logged and the request/response continues
// unmodified, per spec.md §4.7.
type PluginStep struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewPluginStep builds a PluginStep with DefaultPluginTimeout.
func NewPluginStep(logger *zap.Logger) *PluginStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PluginStep{timeout: DefaultPluginTimeout, logger: logger}
}

// WithTimeout overrides DefaultPluginTimeout.
func (s *PluginStep) WithTimeout(d time.Duration) *PluginStep {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// RunPre invokes every hook in order, folding each successful result into
// params for the next hook.
func (s *PluginStep) RunPre(ctx context.Context, rc *RequestContext, hooks []RequestHook, params map[string]any) map[string]any {
	for _, h := range hooks {
		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := h.OnRequest(hctx, rc, params)
		timedOut := hctx.Err() != nil
		cancel()
		if err != nil {
			s.logger.Warn("plugin pre-hook failed, continuing with unmodified payload",
				zap.String("plugin", h.Name()), zap.Error(err))
			continue
		}
		if timedOut {
			s.logger.Warn("plugin pre-hook timed out, continuing with unmodified payload",
				zap.String("plugin", h.Name()))
			continue
		}
		params = result
	}
	return params
}

// RunPost invokes every response hook in order, same timeout/error
// semantics as RunPre.
func (s *PluginStep) RunPost(ctx context.Context, rc *RequestContext, hooks []ResponseHook, resp map[string]any) map[string]any {
	for _, h := range hooks {
		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := h.OnResponse(hctx, rc, resp)
		timedOut := hctx.Err() != nil
		cancel()
		if err != nil {
			s.logger.Warn("plugin post-hook failed, continuing with unmodified payload",
				zap.String("plugin", h.Name()), zap.Error(err))
			continue
		}
		if timedOut {
			s.logger.Warn("plugin post-hook timed out, continuing with unmodified payload",
				zap.String("plugin", h.Name()))
			continue
		}
		resp = result
	}
	return resp
}
