package streamconv

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tytsxai/proxycast/awsstream"
)

// decoder turns provider-native bytes fed incrementally into semanticEvents.
// Every decoder keeps whatever internal buffering its wire format demands
// (SSE line-splitting, AWS frame carving) and nothing more, per §4.5's "no
// cross-chunk buffering beyond what correctness demands".
type decoder interface {
	feed(chunk []byte) []semanticEvent
	finish() []semanticEvent
}

func newDecoder(src Format) decoder {
	switch src {
	case FormatAWS:
		return &awsDecoder{parser: awsstream.New()}
	case FormatOpenAI:
		return &sseDecoder{lineBuf: &bytes.Buffer{}, dialect: dialectOpenAI}
	case FormatAnthropic:
		return &sseDecoder{lineBuf: &bytes.Buffer{}, dialect: dialectAnthropic}
	case FormatGemini:
		return &sseDecoder{lineBuf: &bytes.Buffer{}, dialect: dialectGemini}
	default:
		return &sseDecoder{lineBuf: &bytes.Buffer{}, dialect: dialectOpenAI}
	}
}

// --- AWS Event Stream decoder -------------------------------------------

type awsDecoder struct {
	parser *awsstream.Parser
}

func (d *awsDecoder) feed(chunk []byte) []semanticEvent {
	return translateAWSEvents(d.parser.Process(chunk))
}

func (d *awsDecoder) finish() []semanticEvent {
	return translateAWSEvents(d.parser.Finish())
}

func translateAWSEvents(evs []awsstream.Event) []semanticEvent {
	var out []semanticEvent
	for _, e := range evs {
		switch e.Kind {
		case awsstream.EventContent:
			out = append(out, semanticEvent{kind: semContentDelta, text: e.Text})
		case awsstream.EventToolUseStart:
			out = append(out, semanticEvent{kind: semToolCallStart, toolID: e.ToolUseID, toolName: e.ToolName})
		case awsstream.EventToolUseInput:
			out = append(out, semanticEvent{kind: semToolCallDelta, toolID: e.ToolUseID, partial: e.PartialJSON})
		case awsstream.EventToolUseStop:
			out = append(out, semanticEvent{kind: semToolCallStop, toolID: e.ToolUseID})
		case awsstream.EventStop:
			out = append(out, semanticEvent{kind: semMessageStop, stop: stopEndTurn})
		case awsstream.EventUsage:
			out = append(out, semanticEvent{kind: semUsage})
		case awsstream.EventFollowupPrompt:
			// ignored downstream, per spec.md §4.4.
		case awsstream.EventParseError:
			out = append(out, semanticEvent{kind: semParseError, parseErrMsg: e.ParseErrorMessage})
		}
	}
	return out
}

// --- SSE decoder (OpenAI / Anthropic / Gemini) --------------------------

type sseDialect int

const (
	dialectOpenAI sseDialect = iota
	dialectAnthropic
	dialectGemini
)

// sseDecoder splits incoming bytes on SSE "\n\n" frame boundaries, then
// dispatches each "data: ..." payload to a dialect-specific classifier. It
// keeps only the trailing partial line across feed() calls.
type sseDecoder struct {
	lineBuf          *bytes.Buffer
	dialect          sseDialect
	toolAccumulators map[string]*anthropicToolAcc // dialectAnthropic only: toolID -> partial JSON
}

type anthropicToolAcc struct {
	name string
}

func (d *sseDecoder) feed(chunk []byte) []semanticEvent {
	d.lineBuf.Write(chunk)
	var out []semanticEvent
	for {
		buf := d.lineBuf.Bytes()
		idx := bytes.Index(buf, []byte("\n\n"))
		if idx < 0 {
			idx = bytes.Index(buf, []byte("\n"))
			if idx < 0 {
				break
			}
		}
		frame := string(buf[:idx])
		skip := idx + 1
		if idx+1 < len(buf) && buf[idx] == '\n' && buf[idx+1] == '\n' {
			skip = idx + 2
		}
		d.lineBuf.Next(skip)
		out = append(out, d.classify(frame)...)
	}
	return out
}

func (d *sseDecoder) finish() []semanticEvent {
	rest := d.lineBuf.String()
	d.lineBuf.Reset()
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	return d.classify(rest)
}

func (d *sseDecoder) classify(frame string) []semanticEvent {
	line := strings.TrimSpace(frame)
	if !strings.HasPrefix(line, "data:") {
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		return []semanticEvent{{kind: semMessageStop, stop: stopEndTurn}}
	}

	switch d.dialect {
	case dialectOpenAI:
		return classifyOpenAIChunk(payload)
	case dialectAnthropic:
		return d.classifyAnthropicChunk(payload)
	case dialectGemini:
		return classifyGeminiChunk(payload)
	default:
		return nil
	}
}

// --- OpenAI SSE chunk classification -------------------------------------

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func classifyOpenAIChunk(payload string) []semanticEvent {
	var c openAIStreamChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return []semanticEvent{{kind: semParseError, parseErrMsg: err.Error()}}
	}
	var out []semanticEvent
	if c.Usage != nil {
		out = append(out, semanticEvent{kind: semUsage, promptTokens: c.Usage.PromptTokens, completionTokens: c.Usage.CompletionTokens})
	}
	for _, ch := range c.Choices {
		if ch.Delta.Content != "" {
			out = append(out, semanticEvent{kind: semContentDelta, text: ch.Delta.Content})
		}
		for _, tc := range ch.Delta.ToolCalls {
			if tc.ID != "" && tc.Function.Name != "" {
				out = append(out, semanticEvent{kind: semToolCallStart, toolID: tc.ID, toolName: tc.Function.Name})
			}
			if tc.Function.Arguments != "" {
				out = append(out, semanticEvent{kind: semToolCallDelta, toolID: tc.ID, partial: tc.Function.Arguments})
			}
		}
		if ch.FinishReason != nil {
			sr := stopEndTurn
			switch *ch.FinishReason {
			case "length":
				sr = stopMaxTokens
			case "tool_calls":
				sr = stopToolUse
			case "content_filter":
				sr = stopContentFilter
			}
			out = append(out, semanticEvent{kind: semMessageStop, stop: sr})
		}
	}
	return out
}

// --- Anthropic SSE chunk classification -----------------------------------

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d *sseDecoder) classifyAnthropicChunk(payload string) []semanticEvent {
	if d.toolAccumulators == nil {
		d.toolAccumulators = make(map[string]*anthropicToolAcc)
	}
	var e anthropicStreamEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return []semanticEvent{{kind: semParseError, parseErrMsg: err.Error()}}
	}
	switch e.Type {
	case "content_block_start":
		if e.ContentBlock.Type == "tool_use" {
			d.toolAccumulators[e.ContentBlock.ID] = &anthropicToolAcc{name: e.ContentBlock.Name}
			return []semanticEvent{{kind: semToolCallStart, toolID: e.ContentBlock.ID, toolName: e.ContentBlock.Name}}
		}
		if e.ContentBlock.Type == "thinking" {
			return nil
		}
	case "content_block_delta":
		switch e.Delta.Type {
		case "text_delta":
			return []semanticEvent{{kind: semContentDelta, text: e.Delta.Text}}
		case "thinking_delta":
			return []semanticEvent{{kind: semThinkingDelta, text: e.Delta.Text}}
		case "input_json_delta":
			// Index-keyed in Anthropic's wire format; callers key tool
			// accumulation by whichever tool_use ID started most recently
			// for this index — in practice a single open tool per index.
			for id := range d.toolAccumulators {
				return []semanticEvent{{kind: semToolCallDelta, toolID: id, partial: e.Delta.PartialJSON}}
			}
		}
	case "content_block_stop":
		for id := range d.toolAccumulators {
			delete(d.toolAccumulators, id)
			return []semanticEvent{{kind: semToolCallStop, toolID: id}}
		}
	case "message_delta":
		sr := stopEndTurn
		switch e.Delta.StopReason {
		case "max_tokens":
			sr = stopMaxTokens
		case "tool_use":
			sr = stopToolUse
		}
		return []semanticEvent{
			{kind: semUsage, completionTokens: e.Usage.OutputTokens},
			{kind: semMessageStop, stop: sr},
		}
	}
	return nil
}

// --- Gemini SSE chunk classification ---------------------------------------

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func classifyGeminiChunk(payload string) []semanticEvent {
	var c geminiStreamChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return []semanticEvent{{kind: semParseError, parseErrMsg: err.Error()}}
	}
	var out []semanticEvent
	if c.UsageMetadata != nil {
		out = append(out, semanticEvent{kind: semUsage, promptTokens: c.UsageMetadata.PromptTokenCount, completionTokens: c.UsageMetadata.CandidatesTokenCount})
	}
	for _, cand := range c.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				out = append(out, semanticEvent{kind: semContentDelta, text: part.Text})
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.Name
				out = append(out, semanticEvent{kind: semToolCallStart, toolID: id, toolName: part.FunctionCall.Name})
				out = append(out, semanticEvent{kind: semToolCallDelta, toolID: id, partial: string(args)})
				out = append(out, semanticEvent{kind: semToolCallStop, toolID: id})
			}
		}
		if cand.FinishReason != "" {
			sr := stopEndTurn
			switch cand.FinishReason {
			case "MAX_TOKENS":
				sr = stopMaxTokens
			case "SAFETY", "RECITATION":
				sr = stopContentFilter
			}
			out = append(out, semanticEvent{kind: semMessageStop, stop: sr})
		}
	}
	return out
}
