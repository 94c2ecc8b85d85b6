package flow

import (
	"sort"

	"github.com/google/uuid"
)

// SortBy names a List ordering.
type SortBy string

const (
	SortByCreatedDesc SortBy = "created_desc"
	SortByCreatedAsc  SortBy = "created_asc"
	SortByLatencyDesc SortBy = "latency_desc"
	SortByTokensDesc  SortBy = "tokens_desc"
)

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = 50
	}
	return p
}

// QueryResult is one page of a List/Search call.
type QueryResult struct {
	Flows      []LLMFlow
	TotalCount int
	Page       Page
}

// List returns a filtered, sorted, paginated view over the in-memory
// flows, per §4.6's `list(filter, sort, page)` operation.
func (s *Store) List(filter Expr, sort_ SortBy, page Page) QueryResult {
	page = page.normalized()

	var matched []LLMFlow
	for _, id := range s.allIDs() {
		f, ok := s.Get(id)
		if !ok {
			continue
		}
		if filter.node == nil || filter.Eval(&f) {
			matched = append(matched, f)
		}
	}

	sortFlows(matched, sort_)

	total := len(matched)
	start := (page.Number - 1) * page.Size
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	return QueryResult{Flows: matched[start:end], TotalCount: total, Page: page}
}

func sortFlows(flows []LLMFlow, by SortBy) {
	switch by {
	case SortByCreatedAsc:
		sort.Slice(flows, func(i, j int) bool { return flows[i].Timestamps.Created.Before(flows[j].Timestamps.Created) })
	case SortByLatencyDesc:
		sort.Slice(flows, func(i, j int) bool { return flows[i].LatencyMillis() > flows[j].LatencyMillis() })
	case SortByTokensDesc:
		sort.Slice(flows, func(i, j int) bool {
			return flows[i].Response.Usage.TotalTokens > flows[j].Response.Usage.TotalTokens
		})
	default: // SortByCreatedDesc
		sort.Slice(flows, func(i, j int) bool { return flows[i].Timestamps.Created.After(flows[j].Timestamps.Created) })
	}
}

// Search runs fts against the backing FileStore (if attached) and returns
// the matching in-memory flows still resident, per §4.6's
// `search(fts_query)` operation.
func (s *Store) Search(fts *FileStore, query string, limit int) ([]LLMFlow, error) {
	ids, err := fts.FTSSearch(query, limit)
	if err != nil {
		return nil, err
	}
	var out []LLMFlow
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		if f, ok := s.Get(id); ok {
			out = append(out, f)
		}
	}
	return out, nil
}
