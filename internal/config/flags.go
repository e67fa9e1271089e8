package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Client flags
	flags.String("base-url", "", "Base URL that relative request URLs are resolved against")
	flags.StringSlice("header", nil, "Default request header in key=value form")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Bool("with-credentials", true, "Keep cookies between requests")
	flags.Bool("auto-csrf", true, "Fetch a fresh CSRF cookie and resend when the session expires (HTTP 419)")
	flags.String("csrf-cookie-url", "/sanctum/csrf-cookie", "URL that issues a fresh CSRF cookie")
	flags.String("xsrf-cookie-name", "XSRF-TOKEN", "Cookie holding the XSRF token")
	flags.String("xsrf-header-name", "X-XSRF-TOKEN", "Header the XSRF token is echoed in")
	flags.Float64("rate", 0, "Requests per second limit (0 means unlimited)")

	// Form flags
	flags.String("url", "", "Submission URL")
	flags.String("method", string(FormMethodPost), "Form method: post, patch or put")
	flags.Bool("reset-after-send", true, "Restore original values after a successful submit")
	flags.Bool("remove-null-values", true, "Drop null and empty values from the payload")
	flags.String("array-style", string(ArrayStyleBrackets), "List encoding: brackets (field[]) or indexed (field[0])")
	flags.Bool("dot-notation", false, "Key nested objects as field.key instead of field[key]")
	flags.String("fields-file", "", "Path to a JSON or YAML file with initial field values")
	flags.StringArray("field", nil, "Field value in key=value form (repeatable)")
	flags.StringSlice("touched", nil, "Touched field names sent with validate")

	// Auth flags
	flags.String("auth-type", "", "Authentication: static or client_credentials")
	flags.String("auth-token", "", "Static bearer token")
	flags.String("auth-token-url", "", "OAuth2 token endpoint")
	flags.String("auth-client-id", "", "OAuth2 client id")
	flags.String("auth-client-secret", "", "OAuth2 client secret")
	flags.StringSlice("auth-scopes", nil, "OAuth2 scopes")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers even without an exporter")

	// Output flags
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("stats", false, "Print request latency statistics")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strFlags := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.BaseURL},
		{"csrf-cookie-url", &cfg.CSRFCookieURL},
		{"xsrf-cookie-name", &cfg.XSRFCookieName},
		{"xsrf-header-name", &cfg.XSRFHeaderName},
		{"url", &cfg.Form.URL},
		{"fields-file", &cfg.FieldsFile},
		{"auth-token", &cfg.Auth.StaticToken},
		{"auth-token-url", &cfg.Auth.TokenURL},
		{"auth-client-id", &cfg.Auth.ClientID},
		{"auth-client-secret", &cfg.Auth.ClientSecret},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"log-level", &cfg.LogLevel},
	}
	for _, f := range strFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"with-credentials", &cfg.WithCredentials},
		{"auto-csrf", &cfg.AutoRequestCSRFCookie},
		{"reset-after-send", &cfg.Form.ResetAfterSend},
		{"remove-null-values", &cfg.Form.RemoveNullValues},
		{"dot-notation", &cfg.Form.DotNotation},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
		{"json-output", &cfg.JSONOutput},
		{"stats", &cfg.Stats},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.RequestsPerSecond = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("method") {
		val, err := fs.GetString("method")
		if err != nil {
			return err
		}
		cfg.Form.Method = FormMethod(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("array-style") {
		val, err := fs.GetString("array-style")
		if err != nil {
			return err
		}
		cfg.Form.ArrayStyle = ArrayStyle(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("auth-type") {
		val, err := fs.GetString("auth-type")
		if err != nil {
			return err
		}
		cfg.Auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("auth-scopes") {
		val, err := fs.GetStringSlice("auth-scopes")
		if err != nil {
			return err
		}
		cfg.Auth.Scopes = val
	}
	if fs.Changed("touched") {
		val, err := fs.GetStringSlice("touched")
		if err != nil {
			return err
		}
		cfg.Touched = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			key, value, err := splitKeyValue(entry, "header")
			if err != nil {
				return err
			}
			cfg.Headers[http.CanonicalHeaderKey(key)] = value
		}
	}

	fields, err := fs.GetStringArray("field")
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		if cfg.Fields == nil {
			cfg.Fields = map[string]string{}
		}
		for _, entry := range fields {
			key, value, err := splitKeyValue(entry, "field")
			if err != nil {
				return err
			}
			cfg.Fields[key] = value
		}
	}

	return nil
}

func splitKeyValue(entry, kind string) (string, string, error) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%s must be in key=value format: %s", kind, entry)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", "", fmt.Errorf("%s key cannot be empty", kind)
	}
	return key, strings.TrimSpace(parts[1]), nil
}
