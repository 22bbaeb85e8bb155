package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds a single proxy check. It is a connectivity check,
// not a request through the proxy.
const checkProxyTimeout = 2 * time.Second

// ProxyRotator picks the transport for the next request. Implementations
// must be safe for concurrent use.
type ProxyRotator interface {
	Next() http.RoundTripper
}

// ProxyLister is implemented by rotators whose proxies can be checked by Start.
type ProxyLister interface {
	Proxies() []*url.URL
}

// RoundRobin cycles through a fixed list of proxies, one per request.
//
// socks5:// and socks5h:// proxies dial through golang.org/x/net/proxy;
// http:// and https:// proxies use the standard CONNECT proxy support of
// http.Transport. Credentials in the URL user info are used for both.
type RoundRobin struct {
	urls       []*url.URL
	transports []http.RoundTripper
	next       atomic.Uint64
}

// NewRoundRobin builds one transport per proxy URL.
func NewRoundRobin(rawURLs []string) (*RoundRobin, error) {
	if len(rawURLs) == 0 {
		return nil, fmt.Errorf("%w: no proxies given", ErrInvalidProxyURL)
	}

	rr := &RoundRobin{}
	for _, raw := range rawURLs {
		u, err := parseProxyURL(raw)
		if err != nil {
			return nil, err
		}
		transport, err := newProxyTransport(u)
		if err != nil {
			return nil, err
		}
		rr.urls = append(rr.urls, u)
		rr.transports = append(rr.transports, transport)
	}
	return rr, nil
}

// Next returns the transport of the next proxy in order.
func (r *RoundRobin) Next() http.RoundTripper {
	i := r.next.Add(1) - 1
	return r.transports[i%uint64(len(r.transports))]
}

// Proxies returns the configured proxy URLs.
func (r *RoundRobin) Proxies() []*url.URL {
	return r.urls
}

// Len returns the number of proxies.
func (r *RoundRobin) Len() int {
	return len(r.urls)
}

// parseProxyURL validates a proxy URL.
func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
	}

	switch u.Scheme {
	case "socks5", "socks5h", "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyURL, u.Scheme)
	}

	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProxyURL, u.Redacted())
	}
	return u, nil
}

// newProxyTransport returns an http.Transport routed through u.
func newProxyTransport(u *url.URL) (http.RoundTripper, error) {
	transport := baseTransport()

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		transport.Proxy = nil
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}
	return transport, nil
}

// baseTransport returns the transport settings shared by direct and proxied fetches.
func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// SOCKS5 protocol constants
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthPassword = 0x02
	socks5AuthNoAccept = 0xFF
)

// CheckProxy verifies that the proxy at u is reachable. For SOCKS5 proxies
// it also performs the method negotiation, which a non-SOCKS5 service cannot
// answer correctly. HTTP proxies only need to accept a TCP connection.
func CheckProxy(ctx context.Context, u *url.URL) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return ProxyStatusOK
	}

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Client greeting: version, method count, methods.
	greeting := []byte{socks5Version, 0x01, socks5AuthNone}
	if u.User != nil {
		greeting = []byte{socks5Version, 0x02, socks5AuthNone, socks5AuthPassword}
	}
	if _, err := conn.Write(greeting); err != nil {
		return ProxyStatusCannotConnect
	}

	// Server choice: version, selected method.
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept {
		return ProxyStatusWrongType
	}
	if resp[1] != socks5AuthNone && resp[1] != socks5AuthPassword {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
