package protocol

import "encoding/json"

// Gemini wire types (generateContent / streamGenerateContent). Antigravity
// shares this shape (original_source/converter/protocol_selector.rs treats
// Vertex and GeminiApiKey as Gemini-protocol too).

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *geminiInlineData     `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResult `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFunctionResult struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage   `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func geminiRoleFromCanonical(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func geminiRoleToCanonical(r string) Role {
	if r == "model" {
		return RoleAssistant
	}
	return RoleUser
}

func geminiRequestToDocument(raw []byte) (Document, []Warning, error) {
	var req geminiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return Document{}, nil, err
	}
	doc := Document{}
	var warnings []Warning

	if req.SystemInstruction != nil {
		for _, p := range req.SystemInstruction.Parts {
			doc.System += p.Text
		}
	}
	for _, t := range req.Tools {
		for _, fd := range t.FunctionDeclarations {
			doc.Tools = append(doc.Tools, ToolDef{Name: fd.Name, Description: fd.Description, ParamsJSON: string(fd.Parameters)})
		}
	}
	for _, c := range req.Contents {
		msg := Message{Role: geminiRoleToCanonical(c.Role)}
		for _, p := range c.Parts {
			switch {
			case p.Text != "":
				msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: p.Text})
			case p.InlineData != nil:
				msg.Parts = append(msg.Parts, Part{Kind: PartImage, ImageData: p.InlineData.Data})
			case p.FunctionCall != nil:
				msg.Parts = append(msg.Parts, Part{Kind: PartToolCall, ToolName: p.FunctionCall.Name, ToolCallID: p.FunctionCall.Name, ToolArgsJSON: string(p.FunctionCall.Args)})
			case p.FunctionResponse != nil:
				msg.Parts = append(msg.Parts, Part{Kind: PartToolResult, ToolCallID: p.FunctionResponse.Name, ToolResultJSON: string(p.FunctionResponse.Response)})
			default:
				warnings = append(warnings, Warning{Field: "parts", Detail: "dropped empty/unsupported gemini part"})
			}
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return doc, warnings, nil
}

func documentToGeminiRequest(doc Document) ([]byte, []Warning, error) {
	var warnings []Warning
	req := geminiRequest{}
	if doc.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: doc.System}}}
	}
	if len(doc.Tools) > 0 {
		tool := geminiTool{}
		for _, t := range doc.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDecl{
				Name: t.Name, Description: t.Description, Parameters: json.RawMessage(t.ParamsJSON),
			})
		}
		req.Tools = []geminiTool{tool}
	}
	for _, m := range doc.Messages {
		gc := geminiContent{Role: geminiRoleFromCanonical(m.Role)}
		for _, p := range m.Parts {
			switch p.Kind {
			case PartText, PartThinking:
				gc.Parts = append(gc.Parts, geminiPart{Text: p.Text})
			case PartImage:
				gc.Parts = append(gc.Parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/png", Data: p.ImageData}})
			case PartToolCall:
				gc.Parts = append(gc.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: p.ToolName, Args: json.RawMessage(p.ToolArgsJSON)}})
			case PartToolResult:
				gc.Parts = append(gc.Parts, geminiPart{FunctionResponse: &geminiFunctionResult{Name: p.ToolCallID, Response: json.RawMessage(p.ToolResultJSON)}})
			default:
				warnings = append(warnings, Warning{Field: "parts", Detail: "dropped unsupported part kind"})
			}
		}
		req.Contents = append(req.Contents, gc)
	}
	b, err := json.Marshal(req)
	return b, warnings, err
}

func stopReasonFromGemini(s string) StopReason {
	switch s {
	case "MAX_TOKENS":
		return StopMaxTokens
	case "SAFETY", "RECITATION":
		return StopContentFilter
	default:
		return StopEndTurn
	}
}

func stopReasonToGemini(s StopReason) string {
	switch s {
	case StopMaxTokens:
		return "MAX_TOKENS"
	case StopContentFilter:
		return "SAFETY"
	default:
		return "STOP"
	}
}

func geminiResponseToCanonical(raw []byte) (Response, error) {
	var r geminiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	resp := Response{}
	if len(r.Candidates) > 0 {
		c := r.Candidates[0]
		var parts []Part
		for _, p := range c.Content.Parts {
			switch {
			case p.Text != "":
				parts = append(parts, Part{Kind: PartText, Text: p.Text})
			case p.FunctionCall != nil:
				parts = append(parts, Part{Kind: PartToolCall, ToolName: p.FunctionCall.Name, ToolCallID: p.FunctionCall.Name, ToolArgsJSON: string(p.FunctionCall.Args)})
			}
		}
		resp.Message = Message{Role: RoleAssistant, Parts: parts}
		resp.StopReason = stopReasonFromGemini(c.FinishReason)
	}
	if r.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     r.UsageMetadata.PromptTokenCount,
			CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      r.UsageMetadata.TotalTokenCount,
		}
	}
	return resp, nil
}

func canonicalResponseToGemini(resp Response) ([]byte, error) {
	gc := geminiContent{Role: "model"}
	for _, p := range resp.Message.Parts {
		switch p.Kind {
		case PartText, PartThinking:
			gc.Parts = append(gc.Parts, geminiPart{Text: p.Text})
		case PartToolCall:
			gc.Parts = append(gc.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: p.ToolName, Args: json.RawMessage(p.ToolArgsJSON)}})
		}
	}
	r := geminiResponse{
		Candidates: []geminiCandidate{{Content: gc, FinishReason: stopReasonToGemini(resp.StopReason)}},
		UsageMetadata: &geminiUsage{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		},
	}
	return json.Marshal(r)
}
