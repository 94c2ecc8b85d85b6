// Package streamconv converts a provider-native streaming byte sequence
// (AWS Event Stream, Anthropic SSE, OpenAI SSE, Gemini SSE) into the wire
// format the client expects, preserving causal order and accumulating
// partial tool-call JSON across chunks only when the target protocol
// requires complete JSON to cross a protocol boundary.
package streamconv

import (
	"encoding/json"
	"strings"

	"github.com/tytsxai/proxycast/protocol"
)

// Converter is constructed once per stream with (src, dst) formats. Feed is
// called once per upstream chunk and returns zero or more ready-to-send
// output chunks, in the same relative order the input chunks arrived in
// (the "causal transformation" guarantee of §4.5). It also replays every
// decoded semanticEvent into an internal responseAccumulator so the caller
// can recover the reconstructed protocol.Response via Result once the
// stream ends, without a second decode pass.
type Converter struct {
	dec decoder
	enc encoder
	acc *responseAccumulator
}

// New constructs a Converter transcoding from src's native wire format to
// dst's wire format.
func New(src, dst Format) *Converter {
	return &Converter{dec: newDecoder(src), enc: newEncoder(dst), acc: newResponseAccumulator()}
}

// Feed consumes one chunk of upstream bytes and returns the output chunks
// it completes, if any, plus the concatenated content-delta text decoded
// from this chunk (for callers that mirror content into a separate
// reconstructed-response store, e.g. flow.Store.OnChunk).
func (c *Converter) Feed(chunk []byte) (out [][]byte, deltaText string) {
	var text strings.Builder
	for _, ev := range c.dec.feed(chunk) {
		if ev.kind == semParseError {
			continue // non-fatal per §4.4/§7; parsing continues
		}
		c.acc.apply(ev)
		if ev.kind == semContentDelta {
			text.WriteString(ev.text)
		}
		out = append(out, c.enc.encode(ev)...)
	}
	return out, text.String()
}

// Finish flushes any residual decoder state and the target framing's
// termination sequence (e.g. "data: [DONE]\n\n").
func (c *Converter) Finish() [][]byte {
	var out [][]byte
	for _, ev := range c.dec.finish() {
		if ev.kind == semParseError {
			continue
		}
		c.acc.apply(ev)
		out = append(out, c.enc.encode(ev)...)
	}
	out = append(out, c.enc.finish()...)
	return out
}

// Result renders every semanticEvent seen by Feed/Finish so far into a
// protocol.Response: accumulated content/thinking text, fully assembled
// tool calls, the terminal stop reason, and token usage. Call after Finish
// to get the flow store's "reconstructed response document".
func (c *Converter) Result() protocol.Response {
	return c.acc.result()
}

// ErrorFrame renders the mid-stream SSE error event chosen to resolve
// spec.md §9's open question on wire format: "event: error\ndata:
// {json}\n\n".
func ErrorFrame(code, message string) []byte {
	payload := map[string]any{"error": map[string]any{"type": code, "message": message}}
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(`{"error":{"type":"internal","message":"unencodable error"}}`)
	}
	out := append([]byte("event: error\ndata: "), b...)
	return append(out, []byte("\n\n")...)
}
