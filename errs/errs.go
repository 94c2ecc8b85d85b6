// Package errs defines the unified Provider error taxonomy shared by every
// credential, provider, and pipeline step in ProxyCast.
package errs

import (
	"fmt"
	"strings"
)

// Code classifies a ProviderError. Retryability is a pure function of Code
// (see Retryable), never a per-instance flag, so callers can branch on the
// taxonomy alone.
type Code string

const (
	Network               Code = "network"
	AuthenticationFailure Code = "authentication_failure"
	TokenExpired          Code = "token_expired"
	Configuration         Code = "configuration"
	RateLimit             Code = "rate_limit"
	QuotaExceeded         Code = "quota_exceeded"
	Server                Code = "server"
	Request               Code = "request"
	Parse                 Code = "parse"
	Unknown               Code = "unknown"
)

// Retryable reports whether errors of this Code should be retried by the
// resilience layer. Network, Server, RateLimit -> retryable; everything
// else is terminal.
func (c Code) Retryable() bool {
	switch c {
	case Network, Server, RateLimit:
		return true
	default:
		return false
	}
}

// Error is the unified Provider error type. It is always returned as a
// *Error so callers can type-assert without an ok-check on err itself.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Provider   string
	CredentialID string
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
	}
	return e.Message
}

// Retryable reports whether the error should be retried, per Code.Retryable.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// UserMessage renders a short, Chinese-localized, user-facing string
// alongside the technical detail, matching the original implementation's
// user_friendly_message() phrasing.
func (e *Error) UserMessage() string {
	switch e.Code {
	case Network:
		return fmt.Sprintf("网络连接失败，请检查网络设置后重试。详情：%s", e.Message)
	case AuthenticationFailure:
		return fmt.Sprintf("认证失败，请重新登录。详情：%s", e.Message)
	case TokenExpired:
		return fmt.Sprintf("Token 已过期，正在尝试刷新。详情：%s", e.Message)
	case Configuration:
		return fmt.Sprintf("配置错误，请检查凭证设置。详情：%s", e.Message)
	case RateLimit:
		return fmt.Sprintf("请求过于频繁，请稍后重试。详情：%s", e.Message)
	case QuotaExceeded:
		return fmt.Sprintf("配额已用尽，请检查账户余额。详情：%s", e.Message)
	case Server:
		return fmt.Sprintf("服务器暂时不可用，请稍后重试。详情：%s", e.Message)
	case Request:
		return fmt.Sprintf("请求失败。详情：%s", e.Message)
	case Parse:
		return fmt.Sprintf("数据解析失败。详情：%s", e.Message)
	default:
		return fmt.Sprintf("发生未知错误。详情：%s", e.Message)
	}
}

// ShortMessage returns a short Chinese description of the Code, without
// the technical detail — used in compact log lines and flow summaries.
func (c Code) ShortMessage() string {
	switch c {
	case Network:
		return "网络连接失败"
	case AuthenticationFailure:
		return "认证失败"
	case TokenExpired:
		return "Token 已过期"
	case Configuration:
		return "配置错误"
	case RateLimit:
		return "请求过于频繁"
	case QuotaExceeded:
		return "配额已用尽"
	case Server:
		return "服务器错误"
	case Request:
		return "请求失败"
	case Parse:
		return "数据解析失败"
	default:
		return "未知错误"
	}
}

// FromHTTPStatus maps an HTTP status code and response body to an *Error,
// per the mapping table in §7: 401/403 -> AuthenticationFailure, 429 ->
// RateLimit, other 4xx -> Request (quota/credit/limit keywords in a 400
// body escalate to QuotaExceeded), 5xx -> Server.
func FromHTTPStatus(status int, body, provider string) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{Code: AuthenticationFailure, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	case status == 429:
		return &Error{Code: RateLimit, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	case status == 400:
		lower := strings.ToLower(body)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			return &Error{Code: QuotaExceeded, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
		}
		return &Error{Code: Request, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	case status >= 400 && status < 500:
		return &Error{Code: Request, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	case status >= 500:
		return &Error{Code: Server, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	default:
		return &Error{Code: Unknown, Message: truncate(body, 200), HTTPStatus: status, Provider: provider}
	}
}

// FromNetwork wraps a transport-level error (connect/timeout/DNS) as a
// retryable Network error.
func FromNetwork(err error, provider string) *Error {
	return &Error{Code: Network, Message: err.Error(), Provider: provider}
}

// FromParse wraps a decode error (non-JSON body, malformed frame) as a
// terminal Parse error.
func FromParse(err error, provider string) *Error {
	return &Error{Code: Parse, Message: err.Error(), Provider: provider}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsRetryable is a convenience for callers holding a plain error interface.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Retryable()
}
