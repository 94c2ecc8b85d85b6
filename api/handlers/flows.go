package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/errs"
	"github.com/tytsxai/proxycast/flow"
)

// ListFlows implements GET /v1/flows, spec.md §4.6's `list(filter, sort,
// page)` query surface. filter is the flow-language expression from
// flow.Parse; an empty filter matches every flow.
func ListFlows(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := flow.Expr{}
		if raw := q.Get("filter"); raw != "" {
			parsed, err := flow.Parse(raw)
			if err != nil {
				WriteErrorMessage(w, http.StatusBadRequest, errs.Request, "invalid filter: "+err.Error(), s.Logger)
				return
			}
			filter = parsed
		}

		sortBy := flow.SortBy(q.Get("sort"))
		if sortBy == "" {
			sortBy = flow.SortByCreatedDesc
		}

		page := flow.Page{Number: 1, Size: 50}
		if n, err := strconv.Atoi(q.Get("page")); err == nil {
			page.Number = n
		}
		if n, err := strconv.Atoi(q.Get("page_size")); err == nil {
			page.Size = n
		}

		WriteSuccess(w, s.Flows.List(filter, sortBy, page))
	}
}

// GetFlow implements GET /v1/flows/{id}.
func GetFlow(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, errs.Request, "invalid flow id", s.Logger)
			return
		}
		f, ok := s.Flows.Get(id)
		if !ok {
			WriteErrorMessage(w, http.StatusNotFound, errs.Request, "flow not found", s.Logger)
			return
		}
		WriteSuccess(w, f)
	}
}

// PendingIntercepts implements GET /v1/flows/intercepts, listing the flow
// ids currently suspended awaiting an operator decision per §4.6.
func PendingIntercepts(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Interceptor == nil {
			WriteSuccess(w, []uuid.UUID{})
			return
		}
		WriteSuccess(w, s.Interceptor.Pending())
	}
}

// decideRequest is the operator's resolution of one pending intercept.
type decideRequest struct {
	Action string `json:"action"` // "accept", "modify", or "drop"
}

// DecideIntercept implements POST /v1/flows/intercepts/{id}/decide, the
// operator-facing counterpart to AppState.runIntercept's blocking wait.
func DecideIntercept(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Interceptor == nil {
			WriteErrorMessage(w, http.StatusConflict, errs.Request, "no interceptor installed", s.Logger)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, errs.Request, "invalid flow id", s.Logger)
			return
		}
		var req decideRequest
		if err := DecodeJSONBody(w, r, &req, s.Logger); err != nil {
			return
		}

		var action flow.InterceptAction
		switch req.Action {
		case "accept", "":
			action = flow.ActionAccept
		case "modify":
			action = flow.ActionModify
		case "drop":
			action = flow.ActionDrop
		default:
			WriteErrorMessage(w, http.StatusBadRequest, errs.Request, "action must be accept, modify, or drop", s.Logger)
			return
		}

		if !s.Interceptor.Decide(id, flow.Decision{Action: action}) {
			WriteErrorMessage(w, http.StatusNotFound, errs.Request, "no pending intercept for that flow id", s.Logger)
			return
		}
		WriteSuccess(w, map[string]string{"status": "decided"})
	}
}

// ReplayFlow implements POST /v1/flows/{id}/replay, resubmitting a past
// flow's request through AppState.Replayer per §4.6's replay operation.
func ReplayFlow(s *api.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Replayer == nil {
			WriteErrorMessage(w, http.StatusConflict, errs.Request, "replay is not enabled", s.Logger)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, errs.Request, "invalid flow id", s.Logger)
			return
		}
		newID, err := s.Replayer.Replay(r.Context(), id, nil)
		if err != nil {
			WriteError(w, asErrError(err), s.Logger)
			return
		}
		WriteSuccess(w, map[string]string{"flow_id": newID.String()})
	}
}
