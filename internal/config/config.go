package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL               string            `mapstructure:"base_url"`
	Headers               map[string]string `mapstructure:"headers"`
	Timeout               time.Duration     `mapstructure:"timeout"`
	WithCredentials       bool              `mapstructure:"with_credentials"`
	AutoRequestCSRFCookie bool              `mapstructure:"auto_request_csrf_cookie"`
	CSRFCookieURL         string            `mapstructure:"csrf_cookie_url"`
	XSRFCookieName        string            `mapstructure:"xsrf_cookie_name"`
	XSRFHeaderName        string            `mapstructure:"xsrf_header_name"`
	RequestsPerSecond     float64           `mapstructure:"requests_per_second"`
	Form                  FormConfig        `mapstructure:"form"`
	Auth                  AuthConfig        `mapstructure:"auth"`
	Tracing               TracingConfig     `mapstructure:"tracing"`
	LogLevel              string            `mapstructure:"log_level"`
	FieldsFile            string            `mapstructure:"fields_file"`
	Fields                map[string]string `mapstructure:"fields"`
	Touched               []string          `mapstructure:"touched"`
	JSONOutput            bool              `mapstructure:"json_output"`
	Stats                 bool              `mapstructure:"stats"`
	ConfigFile            string            `mapstructure:"-"`
}

type FormMethod string

const (
	FormMethodPost  FormMethod = "post"
	FormMethodPatch FormMethod = "patch"
	FormMethodPut   FormMethod = "put"
)

type ArrayStyle string

const (
	ArrayStyleBrackets ArrayStyle = "brackets"
	ArrayStyleIndexed  ArrayStyle = "indexed"
)

type FormConfig struct {
	URL              string     `mapstructure:"url"`
	Method           FormMethod `mapstructure:"method"`
	ResetAfterSend   bool       `mapstructure:"reset_after_send"`
	RemoveNullValues bool       `mapstructure:"remove_null_values"`
	ArrayStyle       ArrayStyle `mapstructure:"array_style"`
	DotNotation      bool       `mapstructure:"dot_notation"`
}

type AuthType string

const (
	AuthTypeStatic            AuthType = "static"
	AuthTypeClientCredentials AuthType = "client_credentials"
)

type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	StaticToken         string        `mapstructure:"static_token"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Scopes              []string      `mapstructure:"scopes"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate || strings.TrimSpace(t.Endpoint) != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if base := strings.TrimSpace(c.BaseURL); base != "" {
		if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("base_url %q must be an absolute URL", base))
		}
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.RequestsPerSecond < 0 {
		issues = append(issues, "requests_per_second must be >= 0")
	}
	if c.AutoRequestCSRFCookie && strings.TrimSpace(c.CSRFCookieURL) == "" {
		issues = append(issues, "csrf_cookie_url is required when auto_request_csrf_cookie is enabled")
	}
	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("headers: invalid key %q", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("headers: invalid value for %q", key))
		}
	}

	issues = append(issues, validateFormConfig(c.Form)...)
	issues = append(issues, validateAuthConfig(c.Auth)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level %q is not supported", c.LogLevel))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateFormConfig(form FormConfig) []string {
	var issues []string
	switch FormMethod(strings.ToLower(string(form.Method))) {
	case "", FormMethodPost, FormMethodPatch, FormMethodPut:
	default:
		issues = append(issues, fmt.Sprintf("form: method %q is not supported (post, patch or put)", form.Method))
	}
	switch form.ArrayStyle {
	case "", ArrayStyleBrackets, ArrayStyleIndexed:
	default:
		issues = append(issues, fmt.Sprintf("form: array_style %q is not supported", form.ArrayStyle))
	}
	return issues
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	if auth.Type == "" {
		return nil
	}

	switch auth.Type {
	case AuthTypeStatic:
		if strings.TrimSpace(auth.StaticToken) == "" {
			issues = append(issues, "auth: static_token is required for static")
		}
	case AuthTypeClientCredentials:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for client_credentials")
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for client_credentials")
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, "auth: client_secret is required for client_credentials")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}
	return issues
}

func validateTracingConfig(tr TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tr.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tr.Protocol))
	}
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tr.SampleRate))
	}
	return issues
}
