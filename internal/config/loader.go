package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag is applied.
func Defaults() Config {
	return Config{
		Headers:               map[string]string{"X-Requested-With": "XMLHttpRequest"},
		Timeout:               30 * time.Second,
		WithCredentials:       true,
		AutoRequestCSRFCookie: true,
		CSRFCookieURL:         "/sanctum/csrf-cookie",
		XSRFCookieName:        "XSRF-TOKEN",
		XSRFHeaderName:        "X-XSRF-TOKEN",
		Form: FormConfig{
			Method:           FormMethodPost,
			ResetAfterSend:   true,
			RemoveNullValues: true,
			ArrayStyle:       ArrayStyleBrackets,
		},
		Tracing:  TracingConfig{SampleRate: 1.0},
		LogLevel: "info",
		Fields:   map[string]string{},
	}
}

// LoadFlags builds a Config from an already parsed flag set, reading the file
// named by --config first so flags win over file settings.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Form.URL = strings.TrimSpace(cfg.Form.URL)
	cfg.Form.Method = FormMethod(strings.ToLower(string(cfg.Form.Method)))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if cfg.Fields == nil {
		cfg.Fields = map[string]string{}
	}

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		cfg.BaseURL = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "withcredentials", "with_credentials", "with-credentials"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("with_credentials: %w", err)
		}
		cfg.WithCredentials = val
	}

	if raw, ok := lookupSetting(settings, "autorequestcsrfcookie", "auto_request_csrf_cookie", "auto-request-csrf-cookie"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("auto_request_csrf_cookie: %w", err)
		}
		cfg.AutoRequestCSRFCookie = val
	}

	if raw, ok := lookupSetting(settings, "csrfcookieurl", "csrf_cookie_url", "csrf-cookie-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("csrf_cookie_url: %w", err)
		}
		cfg.CSRFCookieURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "xsrfcookiename", "xsrf_cookie_name", "xsrf-cookie-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("xsrf_cookie_name: %w", err)
		}
		cfg.XSRFCookieName = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "xsrfheadername", "xsrf_header_name", "xsrf-header-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("xsrf_header_name: %w", err)
		}
		cfg.XSRFHeaderName = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "requestspersecond", "requests_per_second", "requests-per-second", "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("requests_per_second: %w", err)
		}
		cfg.RequestsPerSecond = val
	}

	if raw, ok := lookupSetting(settings, "form"); ok {
		if err := applyFormSettings(&cfg.Form, raw); err != nil {
			return fmt.Errorf("form: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "fieldsfile", "fields_file", "fields-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("fields_file: %w", err)
		}
		cfg.FieldsFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "fields"); ok {
		fields, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("fields: %w", err)
		}
		cfg.Fields = fields
	}

	if raw, ok := lookupSetting(settings, "touched"); ok {
		touched, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("touched: %w", err)
		}
		cfg.Touched = touched
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "stats"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		cfg.Stats = val
	}

	return nil
}

func applyFormSettings(form *FormConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		form.URL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			form.Method = FormMethod(strings.ToLower(strings.TrimSpace(val)))
		}
	}
	if raw, ok := lookupSetting(settings, "resetaftersend", "reset_after_send", "reset-after-send"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("reset_after_send: %w", err)
		}
		form.ResetAfterSend = val
	}
	if raw, ok := lookupSetting(settings, "removenullvalues", "remove_null_values", "remove-null-values"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("remove_null_values: %w", err)
		}
		form.RemoveNullValues = val
	}
	if raw, ok := lookupSetting(settings, "arraystyle", "array_style", "array-style"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("array_style: %w", err)
		}
		if val != "" {
			form.ArrayStyle = ArrayStyle(strings.ToLower(strings.TrimSpace(val)))
		}
	}
	if raw, ok := lookupSetting(settings, "dotnotation", "dot_notation", "dot-notation"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dot_notation: %w", err)
		}
		form.DotNotation = val
	}
	return nil
}

func applyTracingSettings(tr *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tr.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tr.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tr.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tr.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tr.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tr.Propagate = val
	}
	return nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	if value == nil {
		return AuthConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}
	return buildAuthConfig(entry)
}

func buildAuthConfig(settings map[string]interface{}) (AuthConfig, error) {
	var auth AuthConfig
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "statictoken", "static_token", "static-token"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("static_token: %w", err)
		}
		auth.StaticToken = strings.TrimSpace(val)
	}
	// Fallback to environment variable if static_token is empty
	if auth.StaticToken == "" {
		if envToken := os.Getenv("FORMWIRE_AUTH_STATIC_TOKEN"); envToken != "" {
			auth.StaticToken = envToken
		}
	}
	if raw, ok := lookupSetting(settings, "tokenurl", "token_url", "token-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("token_url: %w", err)
		}
		auth.TokenURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "clientid", "client_id", "client-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("client_id: %w", err)
		}
		auth.ClientID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "clientsecret", "client_secret", "client-secret"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("client_secret: %w", err)
		}
		auth.ClientSecret = strings.TrimSpace(val)
	}
	// Fallback to environment variable if client_secret is empty
	if auth.ClientSecret == "" {
		if envSecret := os.Getenv("FORMWIRE_AUTH_CLIENT_SECRET"); envSecret != "" {
			auth.ClientSecret = envSecret
		}
	}
	if raw, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := asStringSlice(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(settings, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}
