package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const maxTokenResponseBytes = 64 * 1024

// ClientCredentialsProvider implements the OAuth2 client credentials flow.
// Tokens are cached until refreshBeforeExpiry ahead of their expiry; concurrent
// callers share a single in-flight fetch.
type ClientCredentialsProvider struct {
	tokenURL            string
	clientID            string
	clientSecret        string
	scopes              []string
	refreshBeforeExpiry time.Duration
	httpClient          *http.Client
	now                 func() time.Time

	mu       sync.Mutex
	token    string
	expiry   time.Time
	fetching bool
	fetched  *sync.Cond
}

// NewClientCredentialsProvider creates a new OAuth2 client credentials provider.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string, refreshBeforeExpiry time.Duration) *ClientCredentialsProvider {
	p := &ClientCredentialsProvider{
		tokenURL:            tokenURL,
		clientID:            clientID,
		clientSecret:        clientSecret,
		scopes:              append([]string(nil), scopes...),
		refreshBeforeExpiry: refreshBeforeExpiry,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
		now:                 time.Now,
	}
	p.fetched = sync.NewCond(&p.mu)
	return p
}

// Token retrieves a valid access token, using the cache when available.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.token != "" && p.now().Before(p.expiry) {
			return p.token, nil
		}
		if !p.fetching {
			break
		}
		p.fetched.Wait()
	}

	p.fetching = true
	p.mu.Unlock()
	token, expiresIn, err := p.fetchToken(ctx)
	p.mu.Lock()
	p.fetching = false
	p.fetched.Broadcast()

	if err != nil {
		return "", err
	}

	p.token = token
	p.expiry = p.now().Add(expiresIn - p.refreshBeforeExpiry)
	return token, nil
}

func (p *ClientCredentialsProvider) fetchToken(ctx context.Context) (string, time.Duration, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	if len(p.scopes) > 0 {
		data.Set("scope", strings.Join(p.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}

	if oauthErr := gjson.GetBytes(body, "error"); oauthErr.Exists() {
		return "", 0, fmt.Errorf("oauth2 error: %s - %s", oauthErr.String(), gjson.GetBytes(body, "error_description").String())
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", 0, fmt.Errorf("no access token in response")
	}
	expiresIn := time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second

	return token, expiresIn, nil
}

// InjectHeader injects the access token into the Authorization header.
func (p *ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	setBearer(req, token)
	return nil
}

// Close releases resources held by the provider.
func (p *ClientCredentialsProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
