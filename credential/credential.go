// Package credential implements the Credential value type and the
// CredentialPool registry described in §3/§4.1: per-provider credential
// storage, health tracking, and round-robin-with-skip selection.
package credential

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an upstream provider family and its native protocol.
type Kind string

const (
	OpenAI       Kind = "openai"
	Anthropic    Kind = "anthropic"
	Kiro         Kind = "kiro"
	Gemini       Kind = "gemini"
	Qwen         Kind = "qwen"
	Antigravity  Kind = "antigravity"
	Vertex       Kind = "vertex"
	GeminiAPIKey Kind = "gemini_api_key"
	Codex        Kind = "codex"
	ClaudeOAuth  Kind = "claude_oauth"
	IFlow        Kind = "iflow"
)

// Payload is the tagged-variant credential secret. Exactly one concrete
// type below implements it.
type Payload interface {
	isPayload()
}

// APIKey is a bare bearer/x-api-key secret with an optional per-credential
// base URL override.
type APIKey struct {
	Key     string
	BaseURL string
}

func (APIKey) isPayload() {}

// OAuthFile points at a provider-specific JSON credential file on disk
// (see §6 "Credential files on disk"); APIBaseURL overrides the provider
// default when set.
type OAuthFile struct {
	Path       string
	APIBaseURL string
}

func (OAuthFile) isPayload() {}

// VertexServiceAccount holds the fields needed to mint a signed JWT
// assertion for the Google OAuth service-account flow.
type VertexServiceAccount struct {
	ProjectID    string
	ClientEmail  string
	PrivateKey   string // PEM-encoded RSA private key
	PrivateKeyID string
	TokenURI     string
}

func (VertexServiceAccount) isPayload() {}

// Status is a Credential's health state.
type Status struct {
	Unhealthy bool
	Reason    string
}

// Active reports the zero-value-friendly "healthy" status.
func Active() Status { return Status{} }

// Stats holds per-credential usage statistics.
type Stats struct {
	Total              int64
	Success            int64
	Failure            int64
	ConsecutiveFailure int
	AvgLatencyMS       float64
	LastUsed           time.Time
	LastFailure        time.Time
}

// Credential is a single secret used to call one upstream provider,
// identified by a stable UUID within its pool.
type Credential struct {
	ID        uuid.UUID
	Kind      Kind
	Payload   Payload
	ProxyURL  string
	Status    Status
	Stats     Stats
}

// IsHealthy reports whether the credential's status is Active.
func (c *Credential) IsHealthy() bool {
	return !c.Status.Unhealthy
}

// recordLatency folds a new latency sample into the running average using
// a simple incremental mean; avoids keeping a full latency history.
func (s *Stats) recordLatency(latencyMS float64) {
	n := s.Success // samples observed before this one lands (one per success)
	if n <= 0 {
		s.AvgLatencyMS = latencyMS
		return
	}
	s.AvgLatencyMS = s.AvgLatencyMS + (latencyMS-s.AvgLatencyMS)/float64(n+1)
}
