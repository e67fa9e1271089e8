// Package auth supplies bearer tokens for requests sent by the form client.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/torosent/formwire/internal/config"
)

// Provider obtains a bearer token and sets it on outgoing requests.
type Provider interface {
	Token(ctx context.Context) (string, error)
	// InjectHeader sets the Authorization header on req. The transport calls
	// it on a clone of every request.
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

// NewProvider builds the provider selected by cfg. It returns nil, nil when no
// authentication is configured.
func NewProvider(cfg config.AuthConfig) (Provider, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case config.AuthTypeStatic:
		return NewStaticTokenProvider(cfg.StaticToken), nil
	case config.AuthTypeClientCredentials:
		return NewClientCredentialsProvider(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes, cfg.RefreshBeforeExpiry), nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", cfg.Type)
	}
}

// StaticTokenProvider sends a token issued outside of formwire, such as a
// personal access token.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: strings.TrimSpace(token)}
}

func (p *StaticTokenProvider) Token(context.Context) (string, error) {
	return p.token, nil
}

func (p *StaticTokenProvider) InjectHeader(_ context.Context, req *http.Request) error {
	setBearer(req, p.token)
	return nil
}

func (p *StaticTokenProvider) Close() error { return nil }

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
