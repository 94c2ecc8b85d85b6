package pipeline

import (
	"path/filepath"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// ModelRoute maps a requested model (by exact name or glob pattern) to a
// provider kind and, optionally, a renamed upstream model.
type ModelRoute struct {
	Pattern       string
	Provider      credential.Kind
	ResolvedModel string // empty means keep the requested name
}

// ClientOverride pins a ClientType to a provider regardless of the
// requested model, consulted before the default route (spec.md §4.7).
type ClientOverride struct {
	Client   ClientType
	Provider credential.Kind
}

// RoutingStep resolves (provider_kind, resolved_model) for an inbound
// request, per spec.md §4.7: per-endpoint overrides, client-type
// detection, then the default provider.
type RoutingStep struct {
	routes          []ModelRoute
	clientOverrides []ClientOverride
	defaultProvider credential.Kind
}

// NewRoutingStep builds a RoutingStep with the given rule tables and
// fallback provider.
func NewRoutingStep(routes []ModelRoute, overrides []ClientOverride, defaultProvider credential.Kind) *RoutingStep {
	return &RoutingStep{routes: routes, clientOverrides: overrides, defaultProvider: defaultProvider}
}

// Run resolves rc.Provider/rc.ResolvedModel and sets rc.IsDefaultRoute when
// no explicit rule matched.
func (s *RoutingStep) Run(rc *RequestContext) error {
	for _, route := range s.routes {
		ok, err := filepath.Match(route.Pattern, rc.OriginalModel)
		if err != nil {
			return &errs.Error{Code: errs.Configuration, Message: "invalid routing pattern: " + route.Pattern}
		}
		if ok {
			rc.Provider = route.Provider
			rc.ResolvedModel = rc.OriginalModel
			if route.ResolvedModel != "" {
				rc.ResolvedModel = route.ResolvedModel
			}
			rc.IsDefaultRoute = false
			return nil
		}
	}

	for _, o := range s.clientOverrides {
		if o.Client == rc.ClientType {
			rc.Provider = o.Provider
			rc.ResolvedModel = rc.OriginalModel
			rc.IsDefaultRoute = false
			return nil
		}
	}

	rc.Provider = s.defaultProvider
	rc.ResolvedModel = rc.OriginalModel
	rc.IsDefaultRoute = true
	return nil
}
