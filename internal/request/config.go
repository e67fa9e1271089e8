package request

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/torosent/formwire/internal/config"
)

// StatusSessionExpired is the status a backend answers with when the CSRF
// token bound to the session is no longer valid.
const StatusSessionExpired = 419

// SuccessCallback observes every 2xx response.
type SuccessCallback func(ctx context.Context, resp *Response)

// ErrorCallback handles error responses whose status is one of Codes. An empty
// Codes list matches every status.
type ErrorCallback struct {
	Codes    []int
	Callback func(ctx context.Context, resp *Response)
}

// OnError builds an ErrorCallback for the given statuses.
func OnError(fn func(ctx context.Context, resp *Response), codes ...int) ErrorCallback {
	return ErrorCallback{Codes: codes, Callback: fn}
}

// OnAnyError builds a wildcard ErrorCallback.
func OnAnyError(fn func(ctx context.Context, resp *Response)) ErrorCallback {
	return ErrorCallback{Callback: fn}
}

// Matches reports whether the callback handles status.
func (cb ErrorCallback) Matches(status int) bool {
	return len(cb.Codes) == 0 || slices.Contains(cb.Codes, status)
}

// InterceptorContext is handed to an Interceptor for each error response.
type InterceptorContext struct {
	Response  *Response
	Client    *Client
	Transport *http.Client
	// Attempt counts previous invocations of this interceptor since the last
	// successful response.
	Attempt int
}

// Interceptor runs on every error response. A returned error is logged and does
// not change the outcome of the request.
type Interceptor func(ctx context.Context, ic InterceptorContext) error

// Config holds the recognized client settings.
type Config struct {
	BaseURL               string
	Headers               map[string]string
	WithCredentials       bool
	AutoRequestCSRFCookie bool
	CSRFCookieURL         string
	XSRFCookieName        string
	XSRFHeaderName        string
	Timeout               time.Duration
	RequestsPerSecond     float64
	ErrorCallbacks        []ErrorCallback
	SuccessCallbacks      []SuccessCallback
	Interceptors          []Interceptor
}

// DefaultConfig returns the settings a client starts from.
func DefaultConfig() Config {
	return Config{
		Headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
		},
		WithCredentials:       true,
		AutoRequestCSRFCookie: true,
		CSRFCookieURL:         "/sanctum/csrf-cookie",
		XSRFCookieName:        "XSRF-TOKEN",
		XSRFHeaderName:        "X-XSRF-TOKEN",
		Timeout:               30 * time.Second,
	}
}

// FromSettings maps loaded application settings onto a client Config.
func FromSettings(s config.Config) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = s.BaseURL
	if s.Headers != nil {
		cfg.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	cfg.WithCredentials = s.WithCredentials
	cfg.AutoRequestCSRFCookie = s.AutoRequestCSRFCookie
	cfg.CSRFCookieURL = s.CSRFCookieURL
	if s.XSRFCookieName != "" {
		cfg.XSRFCookieName = s.XSRFCookieName
	}
	if s.XSRFHeaderName != "" {
		cfg.XSRFHeaderName = s.XSRFHeaderName
	}
	cfg.Timeout = s.Timeout
	cfg.RequestsPerSecond = s.RequestsPerSecond
	return cfg
}

func (c Config) clone() Config {
	out := c
	out.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		out.Headers[k] = v
	}
	out.ErrorCallbacks = slices.Clone(c.ErrorCallbacks)
	out.SuccessCallbacks = slices.Clone(c.SuccessCallbacks)
	out.Interceptors = slices.Clone(c.Interceptors)
	return out
}

// Partial is a configuration update. Nil fields are left untouched.
type Partial struct {
	BaseURL               *string
	Headers               map[string]string
	WithCredentials       *bool
	AutoRequestCSRFCookie *bool
	CSRFCookieURL         *string
	XSRFCookieName        *string
	XSRFHeaderName        *string
	Timeout               *time.Duration
	RequestsPerSecond     *float64
	ErrorCallbacks        []ErrorCallback
	SuccessCallbacks      []SuccessCallback
	Interceptors          []Interceptor
}

// Ptr returns a pointer to v, for filling Partial fields.
func Ptr[T any](v T) *T {
	return &v
}

func (c Config) merge(p Partial) Config {
	out := c.clone()
	if p.BaseURL != nil {
		out.BaseURL = *p.BaseURL
	}
	if p.Headers != nil {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	if p.WithCredentials != nil {
		out.WithCredentials = *p.WithCredentials
	}
	if p.AutoRequestCSRFCookie != nil {
		out.AutoRequestCSRFCookie = *p.AutoRequestCSRFCookie
	}
	if p.CSRFCookieURL != nil {
		out.CSRFCookieURL = *p.CSRFCookieURL
	}
	if p.XSRFCookieName != nil {
		out.XSRFCookieName = *p.XSRFCookieName
	}
	if p.XSRFHeaderName != nil {
		out.XSRFHeaderName = *p.XSRFHeaderName
	}
	if p.Timeout != nil {
		out.Timeout = *p.Timeout
	}
	if p.RequestsPerSecond != nil {
		out.RequestsPerSecond = *p.RequestsPerSecond
	}
	if p.ErrorCallbacks != nil {
		out.ErrorCallbacks = slices.Clone(p.ErrorCallbacks)
	}
	if p.SuccessCallbacks != nil {
		out.SuccessCallbacks = slices.Clone(p.SuccessCallbacks)
	}
	if p.Interceptors != nil {
		out.Interceptors = slices.Clone(p.Interceptors)
	}
	return out
}

type looseSettings struct {
	BaseURL               *string           `mapstructure:"baseURL"`
	Headers               map[string]string `mapstructure:"headers"`
	WithCredentials       *bool             `mapstructure:"withCredentials"`
	AutoRequestCSRFCookie *bool             `mapstructure:"autoRequestCsrfCookie"`
	CSRFCookieURL         *string           `mapstructure:"csrfCookieUrl"`
	XSRFCookieName        *string           `mapstructure:"xsrfCookieName"`
	XSRFHeaderName        *string           `mapstructure:"xsrfHeaderName"`
	Timeout               *time.Duration    `mapstructure:"timeout"`
	RequestsPerSecond     *float64          `mapstructure:"requestsPerSecond"`
}

// PartialFromMap converts a loosely typed settings map into a Partial. Keys the
// client does not recognize are ignored. Callback keys must hold the typed
// slices ([]ErrorCallback, []SuccessCallback, []Interceptor).
func PartialFromMap(raw map[string]any) (Partial, error) {
	var p Partial
	scalars := make(map[string]any, len(raw))
	for key, value := range raw {
		switch strings.TrimSpace(key) {
		case "errorCallbacks":
			cbs, ok := value.([]ErrorCallback)
			if !ok {
				return Partial{}, fmt.Errorf("errorCallbacks: unsupported type %T", value)
			}
			p.ErrorCallbacks = cbs
		case "successCallbacks":
			cbs, ok := value.([]SuccessCallback)
			if !ok {
				return Partial{}, fmt.Errorf("successCallbacks: unsupported type %T", value)
			}
			p.SuccessCallbacks = cbs
		case "interceptors":
			ics, ok := value.([]Interceptor)
			if !ok {
				return Partial{}, fmt.Errorf("interceptors: unsupported type %T", value)
			}
			p.Interceptors = ics
		default:
			scalars[key] = value
		}
	}

	var loose looseSettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &loose,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Partial{}, err
	}
	if err := decoder.Decode(scalars); err != nil {
		return Partial{}, fmt.Errorf("decode settings: %w", err)
	}

	p.BaseURL = loose.BaseURL
	p.Headers = loose.Headers
	p.WithCredentials = loose.WithCredentials
	p.AutoRequestCSRFCookie = loose.AutoRequestCSRFCookie
	p.CSRFCookieURL = loose.CSRFCookieURL
	p.XSRFCookieName = loose.XSRFCookieName
	p.XSRFHeaderName = loose.XSRFHeaderName
	p.Timeout = loose.Timeout
	p.RequestsPerSecond = loose.RequestsPerSecond
	return p, nil
}

func validateHeader(name, value string) (string, error) {
	if strings.ContainsAny(name, "\r\n") {
		return "", fmt.Errorf("invalid header key %q", name)
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("invalid header key %q", name)
	}
	canonical := http.CanonicalHeaderKey(trimmed)
	if strings.ContainsAny(value, "\r\n") {
		return "", fmt.Errorf("invalid header value for %s", canonical)
	}
	return canonical, nil
}
