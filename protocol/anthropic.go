package protocol

import "encoding/json"

// Anthropic wire types (Messages API).

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
}

type anthropicMessage struct {
	Role    string                `json:"role"`
	Content []anthropicContentBlk `json:"content"`
}

type anthropicContentBlk struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`         // tool_use
	Name      string          `json:"name,omitempty"`       // tool_use
	Input     json.RawMessage `json:"input,omitempty"`      // tool_use
	ToolUseID string          `json:"tool_use_id,omitempty"`// tool_result
	Content   string          `json:"content,omitempty"`    // tool_result
	IsError   bool            `json:"is_error,omitempty"`   // tool_result
	Source    *anthropicImageSource `json:"source,omitempty"` // image
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	Model      string                `json:"model"`
	Role       string                `json:"role"`
	Content    []anthropicContentBlk `json:"content"`
	StopReason string                `json:"stop_reason"`
	Usage      anthropicUsage        `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func anthropicRequestToDocument(raw []byte) (Document, []Warning, error) {
	var req anthropicRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return Document{}, nil, err
	}
	doc := Document{Model: req.Model, Stream: req.Stream, System: req.System}
	var warnings []Warning

	for _, t := range req.Tools {
		doc.Tools = append(doc.Tools, ToolDef{Name: t.Name, Description: t.Description, ParamsJSON: string(t.InputSchema)})
	}

	for _, m := range req.Messages {
		msg := Message{Role: Role(m.Role)}
		for _, blk := range m.Content {
			switch blk.Type {
			case "text":
				msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: blk.Text})
			case "tool_use":
				msg.Parts = append(msg.Parts, Part{Kind: PartToolCall, ToolCallID: blk.ID, ToolName: blk.Name, ToolArgsJSON: string(blk.Input)})
			case "tool_result":
				msg.Parts = append(msg.Parts, Part{Kind: PartToolResult, ToolCallID: blk.ToolUseID, ToolResultJSON: blk.Content, ToolIsError: blk.IsError})
			case "image":
				url := ""
				data := ""
				if blk.Source != nil {
					url = blk.Source.URL
					data = blk.Source.Data
				}
				msg.Parts = append(msg.Parts, Part{Kind: PartImage, ImageURL: url, ImageData: data})
			default:
				warnings = append(warnings, Warning{Field: "content", Detail: "dropped unsupported anthropic block " + blk.Type})
			}
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return doc, warnings, nil
}

func documentToAnthropicRequest(doc Document) ([]byte, []Warning, error) {
	var warnings []Warning
	req := anthropicRequest{Model: doc.Model, Stream: doc.Stream, System: doc.System, MaxTokens: 4096}
	for _, t := range doc.Tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: json.RawMessage(t.ParamsJSON)})
	}
	for _, m := range doc.Messages {
		am := anthropicMessage{Role: string(m.Role)}
		if m.Role == RoleTool {
			am.Role = string(RoleUser)
		}
		for _, p := range m.Parts {
			switch p.Kind {
			case PartText, PartThinking:
				am.Content = append(am.Content, anthropicContentBlk{Type: "text", Text: p.Text})
			case PartImage:
				am.Content = append(am.Content, anthropicContentBlk{Type: "image", Source: &anthropicImageSource{Type: "url", URL: p.ImageURL, Data: p.ImageData}})
			case PartToolCall:
				am.Content = append(am.Content, anthropicContentBlk{Type: "tool_use", ID: p.ToolCallID, Name: p.ToolName, Input: json.RawMessage(p.ToolArgsJSON)})
			case PartToolResult:
				am.Content = append(am.Content, anthropicContentBlk{Type: "tool_result", ToolUseID: p.ToolCallID, Content: p.ToolResultJSON, IsError: p.ToolIsError})
			default:
				warnings = append(warnings, Warning{Field: "content", Detail: "dropped unsupported part kind"})
			}
		}
		req.Messages = append(req.Messages, am)
	}
	b, err := json.Marshal(req)
	return b, warnings, err
}

func stopReasonFromAnthropic(s string) StopReason {
	switch s {
	case "max_tokens":
		return StopMaxTokens
	case "tool_use":
		return StopToolUse
	case "stop_sequence":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

func stopReasonToAnthropic(s StopReason) string {
	switch s {
	case StopMaxTokens:
		return "max_tokens"
	case StopToolUse:
		return "tool_use"
	default:
		return "end_turn"
	}
}

func anthropicResponseToCanonical(raw []byte) (Response, error) {
	var r anthropicResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	var parts []Part
	for _, blk := range r.Content {
		switch blk.Type {
		case "text":
			parts = append(parts, Part{Kind: PartText, Text: blk.Text})
		case "tool_use":
			parts = append(parts, Part{Kind: PartToolCall, ToolCallID: blk.ID, ToolName: blk.Name, ToolArgsJSON: string(blk.Input)})
		}
	}
	return Response{
		Model:      r.Model,
		Message:    Message{Role: RoleAssistant, Parts: parts},
		StopReason: stopReasonFromAnthropic(r.StopReason),
		Usage: Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}, nil
}

func canonicalResponseToAnthropic(resp Response) ([]byte, error) {
	var content []anthropicContentBlk
	for _, p := range resp.Message.Parts {
		switch p.Kind {
		case PartText, PartThinking:
			content = append(content, anthropicContentBlk{Type: "text", Text: p.Text})
		case PartToolCall:
			content = append(content, anthropicContentBlk{Type: "tool_use", ID: p.ToolCallID, Name: p.ToolName, Input: json.RawMessage(p.ToolArgsJSON)})
		}
	}
	r := anthropicResponse{
		Model:      resp.Model,
		Role:       string(RoleAssistant),
		Content:    content,
		StopReason: stopReasonToAnthropic(resp.StopReason),
		Usage: anthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	return json.Marshal(r)
}
