package protocol

// Document is the canonical, protocol-neutral request/response shape every
// wire format converts through. It mirrors the teacher's preference
// (llm/providers/common.go's OpenAICompat types) for small typed structs
// over an untyped JSON blob, generalized to the 4-protocol matrix this
// module supports instead of agentflow's OpenAI-compat-only shape.
type Document struct {
	System   string
	Messages []Message
	Tools    []ToolDef
	Model    string
	Stream   bool
}

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn, expressed as an ordered list of typed Parts so that
// multi-part content survives a round trip through any protocol that
// supports it, and degrades (with a recorded Warning) through ones that
// don't.
type Message struct {
	Role  Role
	Parts []Part
}

// PartKind discriminates a Part's payload.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartThinking   PartKind = "thinking"
)

// Part is one element of a Message's content array.
type Part struct {
	Kind PartKind

	Text string // PartText, PartThinking

	ImageURL  string // PartImage
	ImageData string // PartImage, base64, alternative to ImageURL

	ToolCallID   string // PartToolCall, PartToolResult
	ToolName     string // PartToolCall
	ToolArgsJSON string // PartToolCall — always complete JSON by the time it reaches a Document

	ToolResultJSON string // PartToolResult
	ToolIsError    bool   // PartToolResult
}

// ToolDef is a tool/function declaration, carried verbatim across protocols
// (the mapping contract requires the JSON schema survive unchanged).
type ToolDef struct {
	Name        string
	Description string
	ParamsJSON  string // JSON schema, preserved verbatim
}

// StopReason is the protocol-neutral completion reason.
type StopReason string

const (
	StopEndTurn      StopReason = "stop"
	StopMaxTokens    StopReason = "length"
	StopToolUse      StopReason = "tool_calls"
	StopContentFilter StopReason = "content_filter"
)

// Usage is token accounting, present when the upstream reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the canonical reconstructed reply.
type Response struct {
	Message    Message
	StopReason StopReason
	Usage      Usage
	Model      string
}

// Warning records a lossy degradation performed during conversion (e.g. a
// non-text part dropped because the target protocol cannot express it).
type Warning struct {
	Field  string
	Detail string
}
