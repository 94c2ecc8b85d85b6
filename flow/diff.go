package flow

import (
	"fmt"

	"github.com/tytsxai/proxycast/protocol"
)

// DiffType discriminates one changed field between two flows.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffRemoved  DiffType = "removed"
	DiffModified DiffType = "modified"
)

// DiffItem is one field-level difference between two flows' resolved
// requests or reconstructed responses.
type DiffItem struct {
	Field string
	Type  DiffType
	Old   string
	New   string
}

// FlowDiff is the structural diff between two flows, used by the replayer
// (per §4.6) to show what an interceptor modification changed.
type FlowDiff struct {
	BaseID, OtherID string
	RequestItems    []DiffItem
	ResponseItems   []DiffItem
}

// Diff computes the structural difference between a and b's resolved
// request and reconstructed response, grounded on
// original_source/flow_monitor/diff.rs.
func Diff(a, b *LLMFlow) FlowDiff {
	d := FlowDiff{BaseID: a.ID.String(), OtherID: b.ID.String()}

	if a.ResolvedRequest.System != b.ResolvedRequest.System {
		d.RequestItems = append(d.RequestItems, DiffItem{Field: "system", Type: DiffModified, Old: a.ResolvedRequest.System, New: b.ResolvedRequest.System})
	}
	if a.ResolvedRequest.Model != b.ResolvedRequest.Model {
		d.RequestItems = append(d.RequestItems, DiffItem{Field: "model", Type: DiffModified, Old: a.ResolvedRequest.Model, New: b.ResolvedRequest.Model})
	}
	d.RequestItems = append(d.RequestItems, diffMessages(a.ResolvedRequest.Messages, b.ResolvedRequest.Messages)...)

	if a.Response.StopReason != b.Response.StopReason {
		d.ResponseItems = append(d.ResponseItems, DiffItem{
			Field: "stop_reason", Type: DiffModified,
			Old: string(a.Response.StopReason), New: string(b.Response.StopReason),
		})
	}
	if a.Response.Usage.TotalTokens != b.Response.Usage.TotalTokens {
		d.ResponseItems = append(d.ResponseItems, DiffItem{
			Field: "total_tokens", Type: DiffModified,
			Old: fmt.Sprint(a.Response.Usage.TotalTokens), New: fmt.Sprint(b.Response.Usage.TotalTokens),
		})
	}
	return d
}

func diffMessages(a, b []protocol.Message) []DiffItem {
	var items []DiffItem
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(a):
			items = append(items, DiffItem{Field: fmt.Sprintf("messages[%d]", i), Type: DiffAdded, New: flattenText(b[i])})
		case i >= len(b):
			items = append(items, DiffItem{Field: fmt.Sprintf("messages[%d]", i), Type: DiffRemoved, Old: flattenText(a[i])})
		default:
			ta, tb := flattenText(a[i]), flattenText(b[i])
			if ta != tb {
				items = append(items, DiffItem{Field: fmt.Sprintf("messages[%d]", i), Type: DiffModified, Old: ta, New: tb})
			}
		}
	}
	return items
}

func flattenText(m protocol.Message) string {
	var s string
	for _, p := range m.Parts {
		s += p.Text
	}
	return s
}
