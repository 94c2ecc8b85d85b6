// Package tokenest provides a local token-count estimate for endpoints
// that must answer without a round trip upstream (Anthropic's
// /v1/messages/count_tokens), per spec.md §6's tiktoken-go fallback.
package tokenest

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens with a cached cl100k_base encoding, falling back
// to a byte/4 heuristic if the encoding table fails to load.
type Estimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New builds an Estimator. The encoding is loaded lazily on first use so
// construction never fails.
func New() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	}
	return e.enc
}

// Estimate counts tokens in a JSON request body's textual content. model is
// accepted for a future per-model encoding table but unused today: every
// chat protocol this module speaks tokenizes close enough to cl100k_base
// for an estimate.
func (e *Estimator) Estimate(model string, raw []byte) int {
	text := flatten(raw)
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// flatten walks an arbitrary JSON value and concatenates every string leaf,
// so the estimate covers message text regardless of the exact request
// shape a caller hands in.
func flatten(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	var out []byte
	out = appendStrings(out, v)
	return string(out)
}

func appendStrings(out []byte, v any) []byte {
	switch t := v.(type) {
	case string:
		out = append(out, t...)
		out = append(out, ' ')
	case []any:
		for _, item := range t {
			out = appendStrings(out, item)
		}
	case map[string]any:
		for _, item := range t {
			out = appendStrings(out, item)
		}
	}
	return out
}
