package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/torosent/formwire/internal/auth"
	"github.com/torosent/formwire/internal/metrics"
	"github.com/torosent/formwire/internal/tracing"
)

// Client dispatches HTTP requests and runs the response pipeline shared by
// every form that submits through it.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	base      http.RoundTripper
	jar       http.CookieJar
	logger    *zap.Logger
	tracer    trace.Tracer
	propagate bool
	collector *metrics.Collector
	auth      auth.Provider

	attempts *attemptCounter
	refresh  singleflight.Group
	retries  sync.WaitGroup
	closed   bool
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger sets the logger used for pipeline diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracing starts a client span per request and, when the provider asks for
// it, injects W3C trace headers.
func WithTracing(p *tracing.Provider) ClientOption {
	return func(c *Client) {
		c.tracer = p.Tracer()
		c.propagate = p.ShouldPropagate()
	}
}

// WithTracer starts a client span per request on tracer.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCollector records latency and status of every request.
func WithCollector(collector *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.collector = collector
	}
}

// WithAuthProvider injects an Authorization header into every request.
func WithAuthProvider(provider auth.Provider) ClientOption {
	return func(c *Client) {
		c.auth = provider
	}
}

// WithBaseTransport replaces the network transport underneath the bound
// headers.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		if rt != nil {
			c.base = rt
		}
	}
}

// New builds a client bound to cfg.
func New(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:      cfg.clone(),
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer("formwire"),
		attempts: newAttemptCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = newBaseTransport()
	}
	jar, err := newCookieJar()
	if err != nil {
		c.logger.Warn("cookies disabled", zap.Error(err))
	}
	c.jar = jar
	c.bind()
	return c
}

var (
	defaultMu     sync.Mutex
	defaultConfig = DefaultConfig()
	instance      atomic.Pointer[Client]
	instanceOnce  sync.Once
)

// Instance returns the process-wide client, building it from the default
// configuration on first use.
func Instance() *Client {
	instanceOnce.Do(func() {
		defaultMu.Lock()
		cfg := defaultConfig.clone()
		defaultMu.Unlock()
		instance.Store(New(cfg))
	})
	return instance.Load()
}

// SetDefaultConfig merges p into the default configuration and into the shared
// instance if it already exists.
func SetDefaultConfig(p Partial) {
	defaultMu.Lock()
	defaultConfig = defaultConfig.merge(p)
	defaultMu.Unlock()

	if inst := instance.Load(); inst != nil {
		inst.SetConfig(p)
	}
}

// bind rebuilds the transport from the current configuration. Callers hold mu
// or own c exclusively.
func (c *Client) bind() {
	c.httpClient = newHTTPClient(c.cfg, c.base, c.jar, c.auth, c.propagate)
	c.limiter = nil
	if rps := c.cfg.RequestsPerSecond; rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// SetConfig merges p into the configuration. Pipeline settings apply to the
// next response; transport settings apply after Rebind or SetHeader.
func (c *Client) SetConfig(p Partial) {
	c.mu.Lock()
	c.cfg = c.cfg.merge(p)
	c.mu.Unlock()
}

// SetConfigMap merges a loosely typed settings map. Unknown keys are ignored.
func (c *Client) SetConfigMap(raw map[string]any) error {
	p, err := PartialFromMap(raw)
	if err != nil {
		return err
	}
	c.SetConfig(p)
	return nil
}

// SetHeader sets a default header and rebuilds the transport so the change
// applies to subsequent requests.
func (c *Client) SetHeader(name, value string) error {
	key, err := validateHeader(name, value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	headers := make(map[string]string, len(c.cfg.Headers)+1)
	for k, v := range c.cfg.Headers {
		if http.CanonicalHeaderKey(k) == key {
			continue
		}
		headers[k] = v
	}
	headers[key] = value
	c.cfg.Headers = headers
	c.bind()
	return nil
}

// Headers returns a copy of the default headers.
func (c *Client) Headers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.cfg.Headers))
	for k, v := range c.cfg.Headers {
		out[k] = v
	}
	return out
}

// Rebind rebuilds the transport from the current configuration.
func (c *Client) Rebind() {
	c.mu.Lock()
	c.bind()
	c.mu.Unlock()
}

// Transport returns the currently bound HTTP client.
func (c *Client) Transport() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

func (c *Client) Get(ctx context.Context, url string, opts ...Option) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodGet, url, nil, opts))
}

func (c *Client) Delete(ctx context.Context, url string, opts ...Option) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodDelete, url, nil, opts))
}

func (c *Client) Post(ctx context.Context, url string, body Body, opts ...Option) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPost, url, body, opts))
}

func (c *Client) Put(ctx context.Context, url string, body Body, opts ...Option) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPut, url, body, opts))
}

func (c *Client) Patch(ctx context.Context, url string, body Body, opts ...Option) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPatch, url, body, opts))
}

func newRequest(method, url string, body Body, opts []Option) *Request {
	req := &Request{Method: method, URL: url, Header: http.Header{}, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Do sends req and runs the response pipeline. Network failures are returned
// unchanged; non-2xx responses come back as *ResponseError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.handle(ctx, req, resp)
}

func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	hc := c.httpClient
	limiter := c.limiter
	baseURL := c.cfg.BaseURL
	c.mu.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target, err := resolveURL(baseURL, req.URL)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartRequestSpan(ctx, c.tracer, req.Method, target)
	httpReq, err := req.build(ctx, target)
	if err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	start := time.Now()
	httpResp, err := hc.Do(httpReq)
	if err != nil {
		c.record(time.Since(start), err, req.Method, httpReq.URL.Path, 0)
		tracing.EndSpan(span, err)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	latency := time.Since(start)
	if err != nil {
		err = fmt.Errorf("read response body: %w", err)
		c.record(latency, err, req.Method, httpReq.URL.Path, httpResp.StatusCode)
		tracing.EndSpan(span, err, tracing.StatusAttribute(httpResp.StatusCode))
		return nil, err
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Request:    req,
	}
	var statusErr error
	if !resp.OK() {
		statusErr = &ResponseError{Response: resp}
	}
	c.record(latency, statusErr, req.Method, httpReq.URL.Path, resp.StatusCode)
	tracing.EndSpan(span, statusErr, tracing.StatusAttribute(resp.StatusCode))
	return resp, nil
}

func (c *Client) record(latency time.Duration, err error, method, endpoint string, status int) {
	if c.collector == nil {
		return
	}
	c.collector.RecordRequest(latency, err, &metrics.RequestMetadata{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
	})
}

func (c *Client) handle(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	cfg := c.Config()

	if resp.OK() {
		for _, cb := range cfg.SuccessCallbacks {
			cb(ctx, resp)
		}
		c.attempts.reset()
		return resp, nil
	}

	if resp.StatusCode == StatusSessionExpired && cfg.AutoRequestCSRFCookie && cfg.CSRFCookieURL != "" && !isResend(ctx) {
		c.scheduleResend(ctx, req, cfg.CSRFCookieURL)
	}

	hc := c.Transport()
	for i, interceptor := range cfg.Interceptors {
		ic := InterceptorContext{
			Response:  resp,
			Client:    c,
			Transport: hc,
			Attempt:   c.attempts.next(i),
		}
		if err := interceptor(ctx, ic); err != nil {
			c.logger.Warn("interceptor failed",
				zap.Int("interceptor", i),
				zap.Int("status", resp.StatusCode),
				zap.Error(err),
			)
		}
	}

	for _, cb := range cfg.ErrorCallbacks {
		if cb.Matches(resp.StatusCode) {
			if cb.Callback != nil {
				cb.Callback(ctx, resp)
			}
			break
		}
	}

	return nil, &ResponseError{Response: resp}
}

type resendKey struct{}

func isResend(ctx context.Context) bool {
	marked, _ := ctx.Value(resendKey{}).(bool)
	return marked
}

// scheduleResend fetches a fresh CSRF cookie and then resends req in the
// background. The outcome is logged only; the original caller has already
// received the 419 error.
func (c *Client) scheduleResend(ctx context.Context, req *Request, csrfURL string) {
	detached := context.WithValue(context.WithoutCancel(ctx), resendKey{}, true)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("client closed, dropping resend",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
		)
		return
	}
	c.retries.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.retries.Done()

		_, err, _ := c.refresh.Do(csrfURL, func() (any, error) {
			resp, err := c.send(detached, &Request{Method: http.MethodGet, URL: csrfURL, Header: http.Header{}})
			if err != nil {
				return nil, err
			}
			if !resp.OK() {
				return nil, &ResponseError{Response: resp}
			}
			return resp, nil
		})
		if err != nil {
			c.logger.Warn("csrf cookie refresh failed", zap.String("url", csrfURL), zap.Error(err))
			return
		}

		c.logger.Debug("resending request after csrf refresh",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
		)
		if _, err := c.Do(detached, req); err != nil {
			c.logger.Warn("resent request failed",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background resends have finished.
func (c *Client) Wait() {
	c.retries.Wait()
}

// Close waits for background resends and releases idle connections and the
// auth provider. A 419 seen after Close is returned without a resend.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Wait()
	c.Transport().CloseIdleConnections()
	if c.auth != nil {
		return c.auth.Close()
	}
	return nil
}

func resolveURL(baseURL, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("request URL is required")
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse request URL: %w", err)
	}
	if ref.IsAbs() || strings.TrimSpace(baseURL) == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
