package handlers

import (
	"net/http"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/credential"
)

// staticCatalog is the model listing exposed at GET /v1/models, spec.md
// §6's static catalog (no live upstream model-list call — providers don't
// agree on one shape, and the gateway only needs routable names).
var staticCatalog = []api.ModelInfo{
	{ID: "gpt-4o", Object: "model", OwnedBy: "openai", Provider: string(credential.OpenAI)},
	{ID: "gpt-4o-mini", Object: "model", OwnedBy: "openai", Provider: string(credential.OpenAI)},
	{ID: "claude-3-5-sonnet-latest", Object: "model", OwnedBy: "anthropic", Provider: string(credential.Anthropic)},
	{ID: "claude-3-5-haiku-latest", Object: "model", OwnedBy: "anthropic", Provider: string(credential.Anthropic)},
	{ID: "gemini-2.0-flash", Object: "model", OwnedBy: "google", Provider: string(credential.Gemini)},
	{ID: "gemini-2.0-pro", Object: "model", OwnedBy: "google", Provider: string(credential.Gemini)},
	{ID: "qwen-max", Object: "model", OwnedBy: "alibaba", Provider: string(credential.Qwen)},
}

// Models implements GET /v1/models.
func Models(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]any{
			"object": "list",
			"data":   staticCatalog,
		})
	}
}
