package pipeline

import (
	"context"
	"crypto/subtle"

	"github.com/tytsxai/proxycast/errs"
)

// AuthStep validates the client's bearer token (or x-api-key) against the
// configured API key, per spec.md §4.7/§6.
type AuthStep struct {
	apiKey string
}

// NewAuthStep builds an AuthStep checking against the configured apiKey.
// An empty apiKey disables auth entirely (local/dev mode).
func NewAuthStep(apiKey string) *AuthStep {
	return &AuthStep{apiKey: apiKey}
}

// Run fails with Unauthorized (errs.AuthenticationFailure, HTTP 401) on a
// mismatch.
func (s *AuthStep) Run(ctx context.Context, rc *RequestContext, presented string) error {
	if s.apiKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.apiKey)) != 1 {
		return &errs.Error{Code: errs.AuthenticationFailure, Message: "invalid api key", HTTPStatus: 401}
	}
	return nil
}
