package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// ErrUnsupportedProtocol is returned by NewTransport for any scheme other
// than socks5/http/https (case-insensitive), per spec.md §6/§8.
type ErrUnsupportedProtocol struct{ Scheme string }

func (e *ErrUnsupportedProtocol) Error() string {
	return fmt.Sprintf("provider: unsupported proxy protocol %q", e.Scheme)
}

// NewTransport builds an *http.Transport routed through proxyURL. An empty
// proxyURL yields a direct-connection transport. Accepted schemes are
// socks5, http, and https, compared case-insensitively (§8's testable
// property).
func NewTransport(proxyURL string) (*http.Transport, error) {
	if proxyURL == "" {
		return &http.Transport{}, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("provider: parse proxy url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("provider: socks5 dialer: %w", err)
		}
		return &http.Transport{Dial: dialer.Dial}, nil
	default:
		return nil, &ErrUnsupportedProtocol{Scheme: u.Scheme}
	}
}

// ResolveProxyURL returns the per-credential proxy URL if set, else the
// global default, per spec.md §6: "Per-credential URL overrides the
// global URL. No URL -> direct connection."
func ResolveProxyURL(perCredential, global string) string {
	if perCredential != "" {
		return perCredential
	}
	return global
}
