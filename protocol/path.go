// Package protocol implements bidirectional transcoding between the chat
// protocols ProxyCast speaks on ingress (OpenAI, Anthropic, Gemini) and the
// protocols upstream providers speak natively (those three plus
// CodeWhisperer and Antigravity).
package protocol

import "github.com/tytsxai/proxycast/credential"

// Protocol names an on-the-wire chat request/response shape.
type Protocol string

const (
	OpenAI        Protocol = "openai"
	Anthropic     Protocol = "anthropic"
	CodeWhisperer Protocol = "codewhisperer"
	Gemini        Protocol = "gemini"
	Antigravity   Protocol = "antigravity"
)

func (p Protocol) String() string { return string(p) }

// ConversionPath describes the transcoding needed to go from an inbound
// protocol to a target provider's native protocol.
type ConversionPath struct {
	Source          Protocol
	Target          Protocol
	NeedsConversion bool
	Complexity      uint8 // 0-10, lower is cheaper; diagnostics only, never alters behavior
}

// NativeProtocol returns the protocol a given provider kind speaks natively.
func NativeProtocol(kind credential.Kind) Protocol {
	switch kind {
	case credential.Kiro:
		return CodeWhisperer
	case credential.Gemini, credential.Vertex, credential.GeminiAPIKey:
		return Gemini
	case credential.Antigravity:
		return Antigravity
	case credential.Anthropic, credential.ClaudeOAuth:
		return Anthropic
	case credential.OpenAI, credential.Qwen, credential.Codex, credential.IFlow:
		return OpenAI
	default:
		return OpenAI
	}
}

// SelectPath picks the conversion path for a request arriving in
// sourceProtocol and destined for targetKind.
func SelectPath(sourceProtocol Protocol, targetKind credential.Kind) ConversionPath {
	target := NativeProtocol(targetKind)
	if sourceProtocol == target {
		return ConversionPath{Source: sourceProtocol, Target: target, NeedsConversion: false, Complexity: 0}
	}
	return ConversionPath{
		Source:          sourceProtocol,
		Target:          target,
		NeedsConversion: true,
		Complexity:      complexity(sourceProtocol, target),
	}
}

func complexity(source, target Protocol) uint8 {
	type pair struct{ a, b Protocol }
	table := map[pair]uint8{
		{OpenAI, Anthropic}: 3, {Anthropic, OpenAI}: 3,
		{OpenAI, CodeWhisperer}: 5, {CodeWhisperer, OpenAI}: 5,
		{OpenAI, Gemini}: 4, {Gemini, OpenAI}: 4,
		{OpenAI, Antigravity}: 4, {Antigravity, OpenAI}: 4,
		{Anthropic, CodeWhisperer}: 6, {CodeWhisperer, Anthropic}: 6,
		{Anthropic, Gemini}: 5, {Gemini, Anthropic}: 5,
		{Anthropic, Antigravity}: 5, {Antigravity, Anthropic}: 5,
		{Gemini, Antigravity}: 1, {Antigravity, Gemini}: 1,
	}
	if c, ok := table[pair{source, target}]; ok {
		return c
	}
	return 7
}

// SupportsDirectConversion reports whether source and target have a
// hand-written mapping, as opposed to needing an OpenAI intermediate hop.
func SupportsDirectConversion(source, target Protocol) bool {
	switch {
	case source == OpenAI && target == Anthropic, source == Anthropic && target == OpenAI:
		return true
	case source == OpenAI && target == CodeWhisperer, source == CodeWhisperer && target == OpenAI:
		return true
	case source == OpenAI && target == Gemini, source == Gemini && target == OpenAI:
		return true
	case source == OpenAI && target == Antigravity, source == Antigravity && target == OpenAI:
		return true
	case source == Gemini && target == Antigravity, source == Antigravity && target == Gemini:
		return true
	default:
		return false
	}
}

// IntermediateProtocol returns the protocol to route through when no direct
// mapping exists between source and target; OpenAI is the hub protocol.
func IntermediateProtocol(source, target Protocol) (Protocol, bool) {
	if !SupportsDirectConversion(source, target) && source != OpenAI && target != OpenAI {
		return OpenAI, true
	}
	return "", false
}

// NeedsSpecialHandling reports whether the pipeline should fall back to a
// non-streaming request because the target cannot express a requested
// feature (CodeWhisperer cannot stream tool calls or images).
func NeedsSpecialHandling(source Protocol, targetKind credential.Kind, hasTools, hasImages bool) bool {
	target := NativeProtocol(targetKind)
	switch {
	case hasTools:
		return target == CodeWhisperer
	case hasImages:
		return targetKind == credential.Kiro
	default:
		return false
	}
}
