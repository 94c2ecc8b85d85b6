package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/protocol"
)

// Messages implements Anthropic's POST /v1/messages.
func Messages(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "request", "failed to read request body", s.Logger)
			return
		}

		doc, _, err := protocol.DecodeRequest(protocol.Anthropic, raw)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}

		rc := pipeline.New(protocol.Anthropic, doc)
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

		body, err := protocol.EncodeResponse(protocol.Anthropic, result.Response)
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

// countTokensRequest mirrors the subset of Anthropic's request shape
// /v1/messages/count_tokens needs: model, system, messages and tools.
type countTokensRequest struct {
	Model    string          `json:"model"`
	System   json.RawMessage `json:"system,omitempty"`
	Messages json.RawMessage `json:"messages"`
	Tools    json.RawMessage `json:"tools,omitempty"`
}

type countTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// CountTokens implements Anthropic's POST /v1/messages/count_tokens as a
// local estimate (spec.md §6's tiktoken-go fallback), never dispatched
// upstream since no completion is requested.
func CountTokens(s *api.AppState, estimate func(model string, raw []byte) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "request", "failed to read request body", s.Logger)
			return
		}
		var req countTokensRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "request", "invalid JSON body", s.Logger)
			return
		}
		WriteSuccess(w, countTokensResponse{InputTokens: estimate(req.Model, raw)})
	}
}
