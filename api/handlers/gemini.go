package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/pipeline"
	"github.com/tytsxai/proxycast/protocol"
)

// GenerateContent implements Gemini's POST
// /v1beta/models/{model}:generateContent and, when stream is true, the
// :streamGenerateContent variant of the same route.
func GenerateContent(s *api.AppState, stream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "request", "failed to read request body", s.Logger)
			return
		}

		doc, _, err := protocol.DecodeRequest(protocol.Gemini, raw)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}
		if model := chi.URLParam(r, "model"); model != "" {
			doc.Model = model
		}
		doc.Stream = stream

		rc := pipeline.New(protocol.Gemini, doc)
		rc.ClientType = pipeline.DetectClient(r.UserAgent())
		presented := bearerFromRequest(r)

		if stream {
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

		body, err := protocol.EncodeResponse(protocol.Gemini, result.Response)
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
