package flow

import "sort"

// EnhancedStats is a percentile latency/throughput rollup over a filtered
// flow set, beyond the per-flow metrics in spec.md §3, grounded on
// original_source/flow_monitor/enhanced_stats.rs.
type EnhancedStats struct {
	Count          int
	P50LatencyMS   int64
	P90LatencyMS   int64
	P99LatencyMS   int64
	TotalTokens    int64
	AvgTokensPerReq float64
	ErrorRate      float64
}

// ComputeStats rolls up EnhancedStats over every flow matching expr.
func (s *Store) ComputeStats(expr Expr) EnhancedStats {
	var latencies []int64
	var totalTokens int64
	var errCount int

	for _, id := range s.allIDs() {
		f, ok := s.Get(id)
		if !ok || !expr.Eval(&f) {
			continue
		}
		latencies = append(latencies, f.LatencyMillis())
		totalTokens += int64(f.Response.Usage.TotalTokens)
		if f.HasError() {
			errCount++
		}
	}

	stats := EnhancedStats{Count: len(latencies), TotalTokens: totalTokens}
	if len(latencies) == 0 {
		return stats
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	stats.P50LatencyMS = percentile(latencies, 50)
	stats.P90LatencyMS = percentile(latencies, 90)
	stats.P99LatencyMS = percentile(latencies, 99)
	stats.AvgTokensPerReq = float64(totalTokens) / float64(len(latencies))
	stats.ErrorRate = float64(errCount) / float64(len(latencies))
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
