package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/errs"
	"github.com/tytsxai/proxycast/protocol"
)

// Dispatcher is the subset of the pipeline a Replayer needs: re-run full
// routing and dispatch for a reconstructed request. Implemented by the api
// package's replayDispatcher; kept as a narrow interface here so flow never
// imports pipeline (see DESIGN.md "Cyclic references avoidance").
type Dispatcher interface {
	Dispatch(ctx context.Context, req protocol.Document, meta map[string]string) (protocol.Response, error)
}

// Replayer reconstructs a request from a stored flow, optionally applies a
// modification, and resubmits it through the same pipeline with a
// "replay" annotation. Per spec.md §9's open question, it never pins the
// original credential — replays always re-run full routing.
type Replayer struct {
	store      *Store
	dispatcher Dispatcher
}

// NewReplayer builds a Replayer backed by store for lookups and dispatcher
// for resubmission.
func NewReplayer(store *Store, dispatcher Dispatcher) *Replayer {
	return &Replayer{store: store, dispatcher: dispatcher}
}

// RequestModification lets the caller (e.g. an interceptor decision, or an
// operator-triggered replay) alter the reconstructed request before it is
// resubmitted.
type RequestModification func(req *protocol.Document)

// Replay resubmits the request captured in flow id, applying mod if
// non-nil, and returns the new flow's id.
func (r *Replayer) Replay(ctx context.Context, id uuid.UUID, mod RequestModification) (uuid.UUID, error) {
	original, ok := r.store.Get(id)
	if !ok {
		return uuid.Nil, fmt.Errorf("flow: replay source %s not found", id)
	}

	req := original.ResolvedRequest
	if mod != nil {
		mod(&req)
	}

	newID := r.store.Begin(req, RoutingMeta{OriginalModel: req.Model}, TypeReplay)
	r.store.withFlow(newID, func(f *LLMFlow) {
		f.Annotations.Extra = map[string]string{"type": "replay", "replay_of": original.ID.String()}
	})

	meta := map[string]string{"request_uuid": original.ID.String(), "replay_of": original.ID.String()}
	resp, err := r.dispatcher.Dispatch(ctx, req, meta)
	if err != nil {
		var pe *errs.Error
		if !errors.As(err, &pe) {
			pe = &errs.Error{Code: errs.Unknown, Message: err.Error()}
		}
		r.store.OnError(newID, pe)
		return newID, err
	}
	r.store.Finish(newID, resp)
	return newID, nil
}
