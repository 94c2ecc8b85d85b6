package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/protocol"
)

// ChatCompletions implements OpenAI's POST /v1/chat/completions, per
// spec.md §6's endpoint table. Grounded on the teacher's
// (github.com/BaSui01/agentflow) api/handlers/chat.go ChatCompletions
// handler shape.
func ChatCompletions(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "request", "failed to read request body", s.Logger)
			return
		}

		doc, warnings, err := protocol.DecodeRequest(protocol.OpenAI, raw)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}
		for _, warn := range warnings {
			s.Logger.Debug("request decode warning", zap.String("field", warn.Field), zap.String("detail", warn.Detail))
		}

		rc := pipeline.New(protocol.OpenAI, doc)
		rc.ClientType = pipeline.DetectClient(r.UserAgent())
		presented := bearerFromRequest(r)

		if doc.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			fw := newFlushWriter(w)
			if err := s.DispatchStream(r.Context(), rc, presented, fw); err != nil && !fw.headerWritten {
				WriteError(w, asErrError(err), s.Logger)
			}
			return
		}

		result, err := s.Dispatch(r.Context(), rc, presented)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}

		body, err := protocol.EncodeResponse(protocol.OpenAI, result.Response)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Flow-ID", result.FlowID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// bearerFromRequest extracts the client-presented secret from either the
// Authorization header (OpenAI/Gemini convention) or x-api-key (Anthropic
// convention), per spec.md §4.1's AuthStep contract.
func bearerFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			return auth[len(prefix):]
		}
		return auth
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	return r.URL.Query().Get("key")
}
