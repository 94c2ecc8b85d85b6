package protocol

import "encoding/json"

// OpenAI wire types, grounded on llm/providers/common.go's OpenAICompat
// structs (Message/ToolCall/Function/Tool/Request/Choice/Usage/Response).

type openAIMessage struct {
	Role       string               `json:"role"`
	Content    json.RawMessage      `json:"content,omitempty"`
	ToolCalls  []openAIToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction2 `json:"function"`
}

type openAIToolFunction2 struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Model   string              `json:"model"`
	Choices []openAIChoice      `json:"choices"`
	Usage   *openAIUsage        `json:"usage,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func openAIRequestToDocument(raw []byte) (Document, []Warning, error) {
	var req openAIRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return Document{}, nil, err
	}
	doc := Document{Model: req.Model, Stream: req.Stream}
	var warnings []Warning

	for _, t := range req.Tools {
		doc.Tools = append(doc.Tools, ToolDef{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			ParamsJSON:  string(t.Function.Parameters),
		})
	}

	for _, m := range req.Messages {
		if m.Role == string(RoleSystem) {
			text, _ := decodeTextContent(m.Content)
			if doc.System != "" {
				doc.System += "\n" + text
			} else {
				doc.System = text
			}
			continue
		}
		if m.Role == string(RoleTool) {
			text, _ := decodeTextContent(m.Content)
			doc.Messages = append(doc.Messages, Message{
				Role: RoleTool,
				Parts: []Part{{
					Kind:           PartToolResult,
					ToolCallID:     m.ToolCallID,
					ToolResultJSON: text,
				}},
			})
			continue
		}

		msg := Message{Role: Role(m.Role)}
		parts, w := decodeContentParts(m.Content)
		msg.Parts = append(msg.Parts, parts...)
		warnings = append(warnings, w...)
		for _, tc := range m.ToolCalls {
			msg.Parts = append(msg.Parts, Part{
				Kind:         PartToolCall,
				ToolCallID:   tc.ID,
				ToolName:     tc.Function.Name,
				ToolArgsJSON: tc.Function.Arguments,
			})
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return doc, warnings, nil
}

func decodeTextContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []openAIContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", err
	}
	text := ""
	for _, p := range parts {
		if p.Type == "text" {
			text += p.Text
		}
	}
	return text, nil
}

func decodeContentParts(raw json.RawMessage) ([]Part, []Warning) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return []Part{{Kind: PartText, Text: s}}, nil
	}
	var raws []openAIContentPart
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, nil
	}
	var parts []Part
	var warnings []Warning
	for _, p := range raws {
		switch p.Type {
		case "text":
			parts = append(parts, Part{Kind: PartText, Text: p.Text})
		case "image_url":
			url := ""
			if p.ImageURL != nil {
				url = p.ImageURL.URL
			}
			parts = append(parts, Part{Kind: PartImage, ImageURL: url})
		default:
			warnings = append(warnings, Warning{Field: "content", Detail: "dropped unsupported part type " + p.Type})
		}
	}
	return parts, warnings
}

func documentToOpenAIRequest(doc Document) ([]byte, []Warning, error) {
	var warnings []Warning
	req := openAIRequest{Model: doc.Model, Stream: doc.Stream}
	if doc.System != "" {
		req.Messages = append(req.Messages, openAIMessage{
			Role:    string(RoleSystem),
			Content: mustJSON(doc.System),
		})
	}
	for _, t := range doc.Tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction2{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.ParamsJSON),
			},
		})
	}
	for _, m := range doc.Messages {
		om, w := messageToOpenAI(m)
		warnings = append(warnings, w...)
		req.Messages = append(req.Messages, om...)
	}
	b, err := json.Marshal(req)
	return b, warnings, err
}

func messageToOpenAI(m Message) ([]openAIMessage, []Warning) {
	var out []openAIMessage
	var warnings []Warning

	if len(m.Parts) == 1 && m.Parts[0].Kind == PartToolResult {
		p := m.Parts[0]
		out = append(out, openAIMessage{
			Role:       string(RoleTool),
			Content:    mustJSON(p.ToolResultJSON),
			ToolCallID: p.ToolCallID,
		})
		return out, warnings
	}

	om := openAIMessage{Role: string(m.Role)}
	var text string
	var contentParts []openAIContentPart
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText, PartThinking:
			text += p.Text
			contentParts = append(contentParts, openAIContentPart{Type: "text", Text: p.Text})
		case PartImage:
			contentParts = append(contentParts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: p.ImageURL}})
		case PartToolCall:
			om.ToolCalls = append(om.ToolCalls, openAIToolCall{
				ID:   p.ToolCallID,
				Type: "function",
				Function: openAIToolFunction{
					Name:      p.ToolName,
					Arguments: p.ToolArgsJSON,
				},
			})
		default:
			warnings = append(warnings, Warning{Field: "content", Detail: "dropped unsupported part kind"})
		}
	}
	if len(contentParts) == 1 && contentParts[0].Type == "text" {
		om.Content = mustJSON(text)
	} else if len(contentParts) > 0 {
		om.Content, _ = json.Marshal(contentParts)
	}
	out = append(out, om)
	return out, warnings
}

func stopReasonFromOpenAI(s string) StopReason {
	switch s {
	case "length":
		return StopMaxTokens
	case "tool_calls":
		return StopToolUse
	case "content_filter":
		return StopContentFilter
	default:
		return StopEndTurn
	}
}

func stopReasonToOpenAI(s StopReason) string {
	switch s {
	case StopMaxTokens:
		return "length"
	case StopToolUse:
		return "tool_calls"
	case StopContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

func openAIResponseToCanonical(raw []byte) (Response, error) {
	var r openAIResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	resp := Response{Model: r.Model}
	if len(r.Choices) > 0 {
		c := r.Choices[0]
		parts, _ := decodeContentParts(c.Message.Content)
		for _, tc := range c.Message.ToolCalls {
			parts = append(parts, Part{
				Kind:         PartToolCall,
				ToolCallID:   tc.ID,
				ToolName:     tc.Function.Name,
				ToolArgsJSON: tc.Function.Arguments,
			})
		}
		resp.Message = Message{Role: RoleAssistant, Parts: parts}
		resp.StopReason = stopReasonFromOpenAI(c.FinishReason)
	}
	if r.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return resp, nil
}

func canonicalResponseToOpenAI(resp Response) ([]byte, error) {
	om, _ := messageToOpenAI(resp.Message)
	msg := openAIMessage{Role: string(RoleAssistant)}
	if len(om) > 0 {
		msg = om[0]
		msg.Role = string(RoleAssistant)
	}
	r := openAIResponse{
		Model: resp.Model,
		Choices: []openAIChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: stopReasonToOpenAI(resp.StopReason),
		}},
		Usage: &openAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	return json.Marshal(r)
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
