package request

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/torosent/formwire/internal/auth"
	"github.com/torosent/formwire/internal/tracing"
)

const (
	// RequestIDHeader carries a unique id for every dispatched request.
	RequestIDHeader = "X-Request-Id"

	defaultAccept = "application/json, text/plain, */*"
)

func newBaseTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func newCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return jar, nil
}

// boundTransport applies the headers bound at construction time to every
// outgoing request.
type boundTransport struct {
	base       http.RoundTripper
	headers    http.Header
	jar        http.CookieJar
	xsrfCookie string
	xsrfHeader string
	auth       auth.Provider
	propagate  bool
}

func (t *boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	for key, values := range t.headers {
		if _, ok := out.Header[key]; !ok {
			out.Header[key] = append([]string(nil), values...)
		}
	}
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", defaultAccept)
	}
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, ulid.Make().String())
	}
	if token := t.xsrfToken(out.URL); token != "" && out.Header.Get(t.xsrfHeader) == "" {
		out.Header.Set(t.xsrfHeader, token)
	}
	if t.auth != nil {
		if err := t.auth.InjectHeader(out.Context(), out); err != nil {
			if req.Body != nil {
				_ = req.Body.Close()
			}
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	if t.propagate {
		tracing.InjectHTTPHeaders(out.Context(), out.Header)
	}

	return t.base.RoundTrip(out)
}

func (t *boundTransport) xsrfToken(u *url.URL) string {
	if t.jar == nil || t.xsrfCookie == "" || t.xsrfHeader == "" {
		return ""
	}
	for _, cookie := range t.jar.Cookies(u) {
		if cookie.Name != t.xsrfCookie {
			continue
		}
		if value, err := url.QueryUnescape(cookie.Value); err == nil {
			return value
		}
		return cookie.Value
	}
	return ""
}

func newHTTPClient(cfg Config, base http.RoundTripper, jar http.CookieJar, provider auth.Provider, propagate bool) *http.Client {
	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		headers.Set(key, value)
	}

	bound := &boundTransport{
		base:       base,
		headers:    headers,
		xsrfCookie: cfg.XSRFCookieName,
		xsrfHeader: http.CanonicalHeaderKey(cfg.XSRFHeaderName),
		auth:       provider,
		propagate:  propagate,
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: bound,
	}
	if cfg.WithCredentials {
		bound.jar = jar
		client.Jar = jar
	}
	return client
}
