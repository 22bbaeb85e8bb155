package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTimeout means the per-fetch timeout expired.
	KindTimeout Kind = iota

	// KindNetwork means the connection failed (DNS, refused, reset, TLS...).
	KindNetwork

	// KindHTTPStatus means the server answered with a status >= 400.
	KindHTTPStatus

	// KindInvalidURL means the URL cannot be requested at all.
	KindInvalidURL

	// KindTooLarge means the body exceeds the maximum body size.
	KindTooLarge
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindInvalidURL:
		return "invalid_url"
	case KindTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FetchError is returned by a Fetcher for every failed fetch.
// It implements retry.Retryable.
type FetchError struct {
	// Kind classifies the failure.
	Kind Kind

	// StatusCode is set for KindHTTPStatus. A 3xx code means the redirect
	// limit was reached.
	StatusCode int

	// URL is the requested URL.
	URL string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus && e.Err != nil:
		return fmt.Sprintf("fetch %s: HTTP %d %s: %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can succeed. Timeouts, network
// failures, server errors, 408 and 429 are retryable. Every other client
// error (404, 410, 451...), redirect loops, oversized bodies and malformed
// URLs are permanent.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return IsRetryableStatus(e.StatusCode)
	default:
		return false
	}
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// Response errors wrapped by FetchError.
var (
	// ErrBodyTooLarge is returned when a body exceeds the maximum body size.
	ErrBodyTooLarge = errors.New("response body exceeds the maximum body size")

	// ErrTooManyRedirects is returned when the redirect limit is reached.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Proxy errors.
// These are returned by Start when a configured proxy cannot be used.
var (
	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrProxyWrongType is returned when a socks5 proxy does not speak SOCKS5.
	ErrProxyWrongType = errors.New("proxy is not a SOCKS5 proxy")

	// ErrInvalidProxyURL is returned for proxy URLs that cannot be parsed or
	// use an unsupported scheme.
	ErrInvalidProxyURL = errors.New("invalid proxy URL: expected socks5://, http:// or https:// with host:port")
)

// ProxyStatus is the result of checking one proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy accepted the handshake.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy answered but not as SOCKS5.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be established.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyWrongType
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
