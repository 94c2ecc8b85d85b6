package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/protocol"
	"github.com/tytsxai/proxycast/provider"
)

// defaultBaseURL returns the provider's public endpoint, used when a
// credential's payload carries no override, per spec.md §6's provider
// table.
func defaultBaseURL(kind credential.Kind) string {
	switch kind {
	case credential.OpenAI, credential.Codex:
		return "https://api.openai.com"
	case credential.Anthropic, credential.ClaudeOAuth:
		return "https://api.anthropic.com"
	case credential.Gemini, credential.GeminiAPIKey, credential.Antigravity:
		return "https://generativelanguage.googleapis.com"
	case credential.Qwen:
		return "https://dashscope.aliyuncs.com/compatible-mode"
	case credential.IFlow:
		return "https://api.iflow.cn"
	case credential.Kiro:
		return "https://codewhisperer.us-east-1.amazonaws.com"
	case credential.Vertex:
		return "https://aiplatform.googleapis.com"
	default:
		return ""
	}
}

// credentialBaseURL resolves the effective base URL for cred, preferring
// the payload's own override over the provider default.
func credentialBaseURL(cred credential.Credential) string {
	switch p := cred.Payload.(type) {
	case credential.APIKey:
		if p.BaseURL != "" {
			return p.BaseURL
		}
	case credential.OAuthFile:
		if p.APIBaseURL != "" {
			return p.APIBaseURL
		}
	}
	return defaultBaseURL(cred.Kind)
}

// bearerToken resolves the secret to present upstream: the static key for
// APIKey credentials, or a cache-refreshed OAuth access token otherwise.
func (s *AppState) bearerToken(ctx context.Context, cred credential.Credential) (string, error) {
	switch p := cred.Payload.(type) {
	case credential.APIKey:
		return p.Key, nil
	default:
		cache, ok := s.TokenCaches[cred.Kind]
		if !ok {
			return "", fmt.Errorf("api: no token cache registered for provider %q", cred.Kind)
		}
		return cache.GetValidToken(ctx, cred.ID)
	}
}

// buildUpstreamRequest renders the fully-prepared provider.Request for one
// dispatch attempt: resolves the secret, the endpoint path (per spec.md §6
// "base_url normalisation"), and the provider-specific auth header shape.
func (s *AppState) buildUpstreamRequest(ctx context.Context, cred credential.Credential, targetProto protocol.Protocol, model string, isStream bool, body []byte) (provider.Request, error) {
	token, err := s.bearerToken(ctx, cred)
	if err != nil {
		return provider.Request{}, fmt.Errorf("api: resolve credential secret: %w", err)
	}
	base := credentialBaseURL(cred)
	headers := http.Header{"Content-Type": {"application/json"}}

	var url string
	switch cred.Kind {
	case credential.OpenAI, credential.Codex, credential.Qwen, credential.IFlow:
		headers.Set("Authorization", "Bearer "+token)
		url = provider.NormalizeEndpoint(base, "chat/completions")
	case credential.Anthropic, credential.ClaudeOAuth:
		if _, ok := cred.Payload.(credential.APIKey); ok {
			headers.Set("x-api-key", token)
		} else {
			headers.Set("Authorization", "Bearer "+token)
		}
		headers.Set("anthropic-version", "2023-06-01")
		url = provider.NormalizeEndpoint(base, "messages")
	case credential.Gemini, credential.GeminiAPIKey, credential.Antigravity, credential.Vertex:
		suffix := "generateContent"
		if isStream {
			suffix = "streamGenerateContent"
		}
		endpoint := fmt.Sprintf("models/%s:%s", model, suffix)
		if _, ok := cred.Payload.(credential.APIKey); ok {
			url = provider.NormalizeEndpoint(base, endpoint) + "?key=" + token
		} else {
			headers.Set("Authorization", "Bearer "+token)
			url = provider.NormalizeEndpoint(base, endpoint)
		}
	case credential.Kiro:
		headers.Set("Authorization", "Bearer "+token)
		url = provider.NormalizeEndpoint(base, "generateAssistantResponse")
	default:
		headers.Set("Authorization", "Bearer "+token)
		url = provider.NormalizeEndpoint(base, "chat/completions")
	}

	return provider.Request{Method: http.MethodPost, URL: url, Headers: headers, Body: body}, nil
}
