package protocol

import "encoding/json"

// CodeWhisperer (Kiro) wire types. Responses arrive as AWS Event Stream
// frames handled by the awsstream package, not as a JSON document, so only
// the request direction is modeled here; the response side of this
// protocol is reconstructed by streamconv from awsstream.Event values.

type codeWhispererRequest struct {
	ConversationID string                  `json:"conversationId"`
	CurrentMessage codeWhispererUserMessage `json:"currentMessage"`
	History        []codeWhispererTurn      `json:"history,omitempty"`
}

type codeWhispererTurn struct {
	UserInputMessage      *codeWhispererUserMessage `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *codeWhispererAssistant `json:"assistantResponseMessage,omitempty"`
}

type codeWhispererUserMessage struct {
	Content string                      `json:"content"`
	Context *codeWhispererMessageContext `json:"userInputMessageContext,omitempty"`
}

type codeWhispererMessageContext struct {
	Tools       []codeWhispererTool       `json:"tools,omitempty"`
	ToolResults []codeWhispererToolResult `json:"toolResults,omitempty"`
}

type codeWhispererTool struct {
	ToolSpecification codeWhispererToolSpec `json:"toolSpecification"`
}

type codeWhispererToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type codeWhispererToolResult struct {
	ToolUseID string          `json:"toolUseId"`
	Content   json.RawMessage `json:"content"`
	Status    string          `json:"status,omitempty"`
}

type codeWhispererAssistant struct {
	Content  string                      `json:"content"`
	ToolUses []codeWhispererToolUseBlock `json:"toolUses,omitempty"`
}

type codeWhispererToolUseBlock struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// documentToCodeWhispererRequest flattens a Document's message history into
// CodeWhisperer's currentMessage + history shape: every message but the
// last becomes history, the last user turn becomes currentMessage. Tool
// definitions and the most recent tool results ride along on
// userInputMessageContext, per the mapping contract's CodeWhisperer row.
func documentToCodeWhispererRequest(doc Document) ([]byte, []Warning, error) {
	var warnings []Warning
	req := codeWhispererRequest{}

	var tools []codeWhispererTool
	for _, t := range doc.Tools {
		tools = append(tools, codeWhispererTool{ToolSpecification: codeWhispererToolSpec{
			Name: t.Name, Description: t.Description, InputSchema: json.RawMessage(t.ParamsJSON),
		}})
	}

	n := len(doc.Messages)
	for i, m := range doc.Messages {
		text := textOf(m)
		if i == n-1 && m.Role != RoleAssistant {
			um := codeWhispererUserMessage{Content: text}
			var results []codeWhispererToolResult
			for _, p := range m.Parts {
				if p.Kind == PartToolResult {
					results = append(results, codeWhispererToolResult{ToolUseID: p.ToolCallID, Content: json.RawMessage(p.ToolResultJSON)})
				}
			}
			if len(tools) > 0 || len(results) > 0 {
				um.Context = &codeWhispererMessageContext{Tools: tools, ToolResults: results}
			}
			req.CurrentMessage = um
			continue
		}
		if m.Role == RoleAssistant {
			asst := &codeWhispererAssistant{Content: text}
			for _, p := range m.Parts {
				if p.Kind == PartToolCall {
					asst.ToolUses = append(asst.ToolUses, codeWhispererToolUseBlock{ToolUseID: p.ToolCallID, Name: p.ToolName, Input: json.RawMessage(p.ToolArgsJSON)})
				}
			}
			req.History = append(req.History, codeWhispererTurn{AssistantResponseMessage: asst})
		} else {
			req.History = append(req.History, codeWhispererTurn{UserInputMessage: &codeWhispererUserMessage{Content: text}})
		}
	}

	if doc.System != "" {
		// CodeWhisperer has no dedicated system slot; fold it into the
		// current turn, as the mapping contract requires never merging a
		// system prompt into ordinary user text silently — record it.
		req.CurrentMessage.Content = doc.System + "\n\n" + req.CurrentMessage.Content
		warnings = append(warnings, Warning{Field: "system", Detail: "folded into current turn content, no native CodeWhisperer system slot"})
	}

	b, err := json.Marshal(req)
	return b, warnings, err
}

func textOf(m Message) string {
	s := ""
	for _, p := range m.Parts {
		if p.Kind == PartText || p.Kind == PartThinking {
			s += p.Text
		}
	}
	return s
}
