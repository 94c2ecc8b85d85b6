package flow

import "github.com/google/uuid"

// BatchOp names a bulk mutation applicable to a filter-expression result
// set, grounded on original_source/flow_monitor/batch_ops.rs.
type BatchOp string

const (
	BatchDelete BatchOp = "delete"
	BatchStar   BatchOp = "star"
	BatchUnstar BatchOp = "unstar"
	BatchTag    BatchOp = "tag"
	BatchUntag  BatchOp = "untag"
)

// BatchResult reports how many flows a BatchApply call touched.
type BatchResult struct {
	Matched int
	Applied int
	Errors  []error
}

// BatchApply evaluates expr against every flow currently held and applies
// op to each match. BatchTag/BatchUntag require arg to name the tag.
func (s *Store) BatchApply(expr Expr, op BatchOp, arg string) BatchResult {
	var res BatchResult
	for _, id := range s.allIDs() {
		f, ok := s.Get(id)
		if !ok || !expr.Eval(&f) {
			continue
		}
		res.Matched++
		if s.applyBatchOp(id, op, arg) {
			res.Applied++
		}
	}
	return res
}

func (s *Store) allIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) applyBatchOp(id uuid.UUID, op BatchOp, arg string) bool {
	switch op {
	case BatchDelete:
		s.mu.Lock()
		if e, ok := s.flows[id]; ok {
			s.order.Remove(e.elem)
			delete(s.flows, id)
		}
		s.mu.Unlock()
		return true
	case BatchStar:
		return s.withFlow(id, func(f *LLMFlow) { f.Annotations.Starred = true })
	case BatchUnstar:
		return s.withFlow(id, func(f *LLMFlow) { f.Annotations.Starred = false })
	case BatchTag:
		return s.withFlow(id, func(f *LLMFlow) {
			if !f.Annotations.HasTag(arg) {
				f.Annotations.Tags = append(f.Annotations.Tags, arg)
			}
		})
	case BatchUntag:
		return s.withFlow(id, func(f *LLMFlow) {
			out := f.Annotations.Tags[:0]
			for _, t := range f.Annotations.Tags {
				if t != arg {
					out = append(out, t)
				}
			}
			f.Annotations.Tags = out
		})
	default:
		return false
	}
}

// ToggleStarred flips a single flow's starred annotation.
func (s *Store) ToggleStarred(id uuid.UUID) bool {
	ok := s.withFlow(id, func(f *LLMFlow) { f.Annotations.Starred = !f.Annotations.Starred })
	return ok
}

// AddTag adds tag to a single flow's annotations, if not already present.
func (s *Store) AddTag(id uuid.UUID, tag string) bool {
	return s.applyBatchOp(id, BatchTag, tag)
}

// RemoveTag removes tag from a single flow's annotations.
func (s *Store) RemoveTag(id uuid.UUID, tag string) bool {
	return s.applyBatchOp(id, BatchUntag, tag)
}
