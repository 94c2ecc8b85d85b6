package streamconv

// Format names a provider-native or client-facing streaming wire shape.
type Format string

const (
	FormatAWS       Format = "aws_event_stream"
	FormatOpenAI    Format = "openai_sse"
	FormatAnthropic Format = "anthropic_sse"
	FormatGemini    Format = "gemini_sse"
)

// semanticKind discriminates the protocol-neutral streaming event used
// internally between decode and encode stages.
type semanticKind int

const (
	semContentDelta semanticKind = iota
	semThinkingDelta
	semToolCallStart
	semToolCallDelta
	semToolCallStop
	semMessageStop
	semUsage
	semParseError
)

type stopReason int

const (
	stopEndTurn stopReason = iota
	stopMaxTokens
	stopToolUse
	stopContentFilter
)

// semanticEvent is the intermediate representation every decoder emits and
// every encoder consumes.
type semanticEvent struct {
	kind semanticKind

	text string // semContentDelta, semThinkingDelta

	toolID    string // semToolCallStart/Delta/Stop
	toolName  string // semToolCallStart
	partial   string // semToolCallDelta — a fragment, possibly not valid JSON alone

	stop stopReason // semMessageStop

	promptTokens     int // semUsage
	completionTokens int // semUsage

	parseErrMsg string // semParseError
}
