package protocol

import "fmt"

// ConvertRequest transcodes a raw request body in srcProto's wire shape into
// dstProto's wire shape. It is a pure function: identical input always
// yields identical output, warnings included.
func ConvertRequest(srcProto, dstProto Protocol, raw []byte) ([]byte, []Warning, error) {
	doc, warnings, err := decodeRequest(srcProto, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol: decode %s request: %w", srcProto, err)
	}
	out, w2, err := encodeRequest(dstProto, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol: encode %s request: %w", dstProto, err)
	}
	return out, append(warnings, w2...), nil
}

// ConvertResponse transcodes a raw non-streaming response body from
// srcProto's wire shape into dstProto's wire shape.
func ConvertResponse(srcProto, dstProto Protocol, raw []byte) ([]byte, error) {
	resp, err := decodeResponse(srcProto, raw)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s response: %w", srcProto, err)
	}
	out, err := encodeResponse(dstProto, resp)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s response: %w", dstProto, err)
	}
	return out, nil
}

// DecodeRequest parses a raw request body in p's wire shape into the
// canonical Document, for callers (ingress handlers, the pipeline) that
// need the intermediate representation rather than a full conversion.
func DecodeRequest(p Protocol, raw []byte) (Document, []Warning, error) {
	return decodeRequest(p, raw)
}

// EncodeRequest renders doc into p's wire shape.
func EncodeRequest(p Protocol, doc Document) ([]byte, []Warning, error) {
	return encodeRequest(p, doc)
}

// DecodeResponse parses a raw non-streaming response body in p's wire
// shape into the canonical Response.
func DecodeResponse(p Protocol, raw []byte) (Response, error) {
	return decodeResponse(p, raw)
}

// EncodeResponse renders resp into p's wire shape.
func EncodeResponse(p Protocol, resp Response) ([]byte, error) {
	return encodeResponse(p, resp)
}

func decodeRequest(p Protocol, raw []byte) (Document, []Warning, error) {
	switch p {
	case OpenAI:
		return openAIRequestToDocument(raw)
	case Anthropic:
		return anthropicRequestToDocument(raw)
	case Gemini, Antigravity:
		return geminiRequestToDocument(raw)
	default:
		return Document{}, nil, fmt.Errorf("protocol: unsupported source protocol %s", p)
	}
}

func encodeRequest(p Protocol, doc Document) ([]byte, []Warning, error) {
	switch p {
	case OpenAI:
		return documentToOpenAIRequest(doc)
	case Anthropic:
		return documentToAnthropicRequest(doc)
	case Gemini, Antigravity:
		return documentToGeminiRequest(doc)
	case CodeWhisperer:
		return documentToCodeWhispererRequest(doc)
	default:
		return nil, nil, fmt.Errorf("protocol: unsupported target protocol %s", p)
	}
}

func decodeResponse(p Protocol, raw []byte) (Response, error) {
	switch p {
	case OpenAI:
		return openAIResponseToCanonical(raw)
	case Anthropic:
		return anthropicResponseToCanonical(raw)
	case Gemini, Antigravity:
		return geminiResponseToCanonical(raw)
	default:
		return Response{}, fmt.Errorf("protocol: unsupported source protocol %s", p)
	}
}

func encodeResponse(p Protocol, resp Response) ([]byte, error) {
	switch p {
	case OpenAI:
		return canonicalResponseToOpenAI(resp)
	case Anthropic:
		return canonicalResponseToAnthropic(resp)
	case Gemini, Antigravity:
		return canonicalResponseToGemini(resp)
	default:
		return nil, fmt.Errorf("protocol: unsupported target protocol %s", p)
	}
}
