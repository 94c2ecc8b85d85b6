// Package awsstream parses the AWS Event Stream binary container that
// CodeWhisperer/Kiro uses to frame JSON payloads, incrementally and with
// per-frame error recovery. It is a direct Go port of the reference
// implementation's aws_parser module: same buffer-accumulation technique,
// same balanced-brace JSON carving, same event classification order.
package awsstream

import (
	"encoding/json"
	"errors"
)

// State is the parser's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateParsing
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind discriminates an Event's payload.
type EventKind int

const (
	EventContent EventKind = iota
	EventToolUseStart
	EventToolUseInput
	EventToolUseStop
	EventStop
	EventUsage
	EventFollowupPrompt
	EventParseError
)

// Event is one semantic unit extracted from the byte stream.
type Event struct {
	Kind EventKind

	Text string // EventContent, EventFollowupPrompt

	ToolUseID   string // EventToolUseStart, EventToolUseInput, EventToolUseStop
	ToolName    string // EventToolUseStart
	PartialJSON string // EventToolUseInput

	Credits            float64 // EventUsage
	ContextUsagePercent float64 // EventUsage

	ParseErrorMessage string  // EventParseError
	RawData           *string // EventParseError
}

// DefaultMaxBufferSize bounds how much unparsed data the parser will
// accumulate before giving up and emitting a ParseError.
const DefaultMaxBufferSize = 1024 * 1024

type toolAccumulator struct {
	name  string
	input string
}

// Parser incrementally decodes AWS Event Stream bytes into Events.
type Parser struct {
	buffer          []byte
	state           State
	errorMessage    string
	toolAccumulators map[string]*toolAccumulator
	parseErrorCount uint32
	maxBufferSize   int
}

// New creates a parser with DefaultMaxBufferSize.
func New() *Parser {
	return NewWithMaxBufferSize(DefaultMaxBufferSize)
}

// NewWithMaxBufferSize creates a parser with a custom buffer cap.
func NewWithMaxBufferSize(maxSize int) *Parser {
	return &Parser{
		state:            StateIdle,
		toolAccumulators: make(map[string]*toolAccumulator),
		maxBufferSize:    maxSize,
	}
}

// State returns the parser's current lifecycle state.
func (p *Parser) State() State { return p.state }

// ParseErrorCount returns how many malformed frames have been recovered from.
func (p *Parser) ParseErrorCount() uint32 { return p.parseErrorCount }

// BufferSize returns the number of unconsumed bytes currently buffered.
func (p *Parser) BufferSize() int { return len(p.buffer) }

// Reset clears all parser state, as if newly constructed.
func (p *Parser) Reset() {
	p.buffer = nil
	p.state = StateIdle
	p.toolAccumulators = make(map[string]*toolAccumulator)
	p.parseErrorCount = 0
}

// Process feeds newly received bytes and returns any events they complete.
func (p *Parser) Process(data []byte) []Event {
	if len(data) == 0 {
		return nil
	}

	if p.state == StateIdle {
		p.state = StateParsing
	}

	if len(p.buffer)+len(data) > p.maxBufferSize {
		p.parseErrorCount++
		p.state = StateError
		p.errorMessage = "buffer overflow"
		return []Event{{Kind: EventParseError, ParseErrorMessage: "缓冲区溢出"}}
	}

	p.buffer = append(p.buffer, data...)
	return p.parseBuffer()
}

// Finish flushes any residual buffered data and synthesizes a ToolUseStop
// for every tool-call accumulator that never saw an explicit stop.
func (p *Parser) Finish() []Event {
	events := p.parseBuffer()

	for id, acc := range p.toolAccumulators {
		if acc.name != "" {
			events = append(events, Event{Kind: EventToolUseStop, ToolUseID: id})
		}
	}
	p.toolAccumulators = make(map[string]*toolAccumulator)
	p.state = StateCompleted
	return events
}

func (p *Parser) parseBuffer() []Event {
	var events []Event
	pos := 0

	for pos < len(p.buffer) {
		start, ok := p.findJSONStart(pos)
		if !ok {
			break
		}
		jsonStr, end, ok := p.extractJSON(start)
		if !ok {
			break
		}
		evs, err := p.parseJSONEvent(jsonStr)
		if err != nil {
			p.parseErrorCount++
			raw := jsonStr
			events = append(events, Event{Kind: EventParseError, ParseErrorMessage: err.Error(), RawData: &raw})
		} else {
			events = append(events, evs...)
		}
		pos = end
	}

	if pos > 0 {
		p.buffer = p.buffer[pos:]
	}
	return events
}

func (p *Parser) findJSONStart(from int) (int, bool) {
	for i := from; i < len(p.buffer); i++ {
		if p.buffer[i] == '{' {
			return i, true
		}
	}
	return 0, false
}

// extractJSON carves a balanced-brace JSON object starting at start,
// honoring string escapes, and returns it with the position just past its
// closing brace. Returns ok=false if the object is not yet complete.
func (p *Parser) extractJSON(start int) (string, int, bool) {
	if start >= len(p.buffer) || p.buffer[start] != '{' {
		return "", 0, false
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(p.buffer); i++ {
		b := p.buffer[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case b == '\\' && inString:
			escapeNext = true
		case b == '"':
			inString = !inString
		case b == '{' && !inString:
			braceCount++
		case b == '}' && !inString:
			braceCount--
			if braceCount == 0 {
				end := i + 1
				return string(p.buffer[start:end]), end, true
			}
		}
	}
	return "", 0, false
}

func (p *Parser) parseJSONEvent(jsonStr string) ([]Event, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return nil, errors.New("JSON 解析错误: " + err.Error())
	}

	var events []Event

	if content, ok := value["content"].(string); ok {
		if _, hasFollowup := value["followupPrompt"]; hasFollowup {
			events = append(events, Event{Kind: EventFollowupPrompt, Text: content})
		} else {
			events = append(events, Event{Kind: EventContent, Text: content})
		}
		return events, nil
	}

	if toolUseID, ok := value["toolUseId"].(string); ok {
		name, _ := value["name"].(string)
		inputChunk, _ := value["input"].(string)
		isStop, _ := value["stop"].(bool)

		acc, exists := p.toolAccumulators[toolUseID]
		if !exists {
			acc = &toolAccumulator{}
			p.toolAccumulators[toolUseID] = acc
		}

		if name != "" && acc.name == "" {
			acc.name = name
			events = append(events, Event{Kind: EventToolUseStart, ToolUseID: toolUseID, ToolName: name})
		}

		if inputChunk != "" {
			acc.input += inputChunk
			events = append(events, Event{Kind: EventToolUseInput, ToolUseID: toolUseID, PartialJSON: inputChunk})
		}

		if isStop {
			delete(p.toolAccumulators, toolUseID)
			events = append(events, Event{Kind: EventToolUseStop, ToolUseID: toolUseID})
		}
		return events, nil
	}

	if isStop, ok := value["stop"].(bool); ok && isStop {
		events = append(events, Event{Kind: EventStop})
		return events, nil
	}

	if usage, ok := value["usage"].(float64); ok {
		events = append(events, Event{Kind: EventUsage, Credits: usage})
		return events, nil
	}

	if ctxUsage, ok := value["contextUsagePercentage"].(float64); ok {
		events = append(events, Event{Kind: EventUsage, ContextUsagePercent: ctxUsage})
		return events, nil
	}

	return events, nil
}
