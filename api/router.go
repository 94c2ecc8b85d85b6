package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tytsxai/proxycast/api/handlers"
)

// RouterConfig configures the ingress mux beyond the AppState it wraps.
type RouterConfig struct {
	CORSOrigins []string
	Estimate    func(model string, raw []byte) int
}

// NewRouter builds the chi mux for every endpoint in spec.md §6, grounded
// on the pack's (jordigilh/kubernaut) chi+cors ingress wiring since the
// teacher's own bare net/http mux doesn't need to host four structurally
// different chat-protocol routes plus a streaming variant of each.
func NewRouter(state *AppState, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "x-api-key", "anthropic-version"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	estimate := cfg.Estimate
	if estimate == nil {
		estimate = func(string, []byte) int { return 0 }
	}

	r.Get("/v1/models", handlers.Models(state))
	r.Post("/v1/chat/completions", handlers.ChatCompletions(state))
	r.Post("/v1/messages", handlers.Messages(state))
	r.Post("/v1/messages/count_tokens", handlers.CountTokens(state, estimate))
	r.Post("/v1beta/models/{model}:generateContent", handlers.GenerateContent(state, false))
	r.Post("/v1beta/models/{model}:streamGenerateContent", handlers.GenerateContent(state, true))

	r.Get("/v1/flows", handlers.ListFlows(state))
	r.Get("/v1/flows/intercepts", handlers.PendingIntercepts(state))
	r.Post("/v1/flows/intercepts/{id}/decide", handlers.DecideIntercept(state))
	r.Get("/v1/flows/{id}", handlers.GetFlow(state))
	r.Post("/v1/flows/{id}/replay", handlers.ReplayFlow(state))

	return r
}
