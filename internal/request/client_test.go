package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/oklog/ulid/v2"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/formwire/internal/auth"
	"github.com/torosent/formwire/internal/metrics"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// statusServer answers every request with the status given in the ?status=
// query parameter, defaulting to 200.
func statusServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if s := r.URL.Query().Get("status"); s != "" {
			fmt.Sscanf(s, "%d", &status)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%d}`, status)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.AutoRequestCSRFCookie = false
	return cfg
}

func TestInstanceIsShared(t *testing.T) {
	first := Instance()
	second := Instance()
	if first != second {
		t.Fatal("Instance() returned different clients")
	}

	SetDefaultConfig(Partial{CSRFCookieURL: Ptr("/csrf")})
	if got := Instance().Config().CSRFCookieURL; got != "/csrf" {
		t.Errorf("CSRFCookieURL = %q, want /csrf", got)
	}
	SetDefaultConfig(Partial{CSRFCookieURL: Ptr(DefaultConfig().CSRFCookieURL)})
}

func TestSetHeaderConverges(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.Header.Values("X-Tenant")
		mu.Unlock()
	}))
	defer server.Close()

	c := New(testConfig(server.URL))
	if err := c.SetHeader("X-Tenant", "first"); err != nil {
		t.Fatalf("SetHeader() error = %v", err)
	}
	if err := c.SetHeader("x-tenant", "second"); err != nil {
		t.Fatalf("SetHeader() error = %v", err)
	}

	want := map[string]string{"X-Requested-With": "XMLHttpRequest", "X-Tenant": "second"}
	if diff := cmp.Diff(want, c.Headers()); diff != "" {
		t.Errorf("Headers() mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.Get(context.Background(), "/"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"second"}, seen); diff != "" {
		t.Errorf("X-Tenant values mismatch (-want +got):\n%s", diff)
	}
}

func TestSetHeaderRejectsInvalid(t *testing.T) {
	c := New(DefaultConfig())
	tests := []struct{ name, value string }{
		{"", "v"},
		{"X-Bad\r\n", "v"},
		{"\r\nX-Lead", "v"},
		{"X-Trail\n", "v"},
		{"X-Mid\rdle", "v"},
		{"X-Ok", "line\nbreak"},
	}
	for _, tt := range tests {
		if err := c.SetHeader(tt.name, tt.value); err == nil {
			t.Errorf("SetHeader(%q, %q) error = nil, want error", tt.name, tt.value)
		}
	}
	if got := c.Headers(); len(got) != len(DefaultConfig().Headers) {
		t.Errorf("Headers() = %v, want rejected keys left out", got)
	}
}

func TestBoundHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer server.Close()

	c := New(testConfig(server.URL), WithAuthProvider(auth.NewStaticTokenProvider("secret")))
	_, err := c.Post(context.Background(), "/items", JSONBody(map[string]string{"a": "b"}),
		WithHeader("X-Requested-With", "override"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	got := <-headers
	if v := got.Get("X-Requested-With"); v != "override" {
		t.Errorf("X-Requested-With = %q, want per-request override", v)
	}
	if v := got.Get("Authorization"); v != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", v)
	}
	if v := got.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", v)
	}
	if v := got.Get("Accept"); v != defaultAccept {
		t.Errorf("Accept = %q, want %q", v, defaultAccept)
	}
	if _, err := ulid.Parse(got.Get(RequestIDHeader)); err != nil {
		t.Errorf("%s = %q is not a ULID: %v", RequestIDHeader, got.Get(RequestIDHeader), err)
	}
}

func TestErrorCallbackMatching(t *testing.T) {
	server := statusServer(t)

	tests := []struct {
		name      string
		status    int
		wantCodes []string
	}{
		{name: "listed 404", status: 404, wantCodes: []string{"codes"}},
		{name: "listed 422", status: 422, wantCodes: []string{"codes"}},
		{name: "unlisted 500", status: 500, wantCodes: []string{"wildcard"}},
		{name: "unlisted 403", status: 403, wantCodes: []string{"wildcard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fired []string
			cfg := testConfig(server.URL)
			cfg.ErrorCallbacks = []ErrorCallback{
				OnError(func(context.Context, *Response) { fired = append(fired, "codes") }, 404, 422),
				OnAnyError(func(context.Context, *Response) { fired = append(fired, "wildcard") }),
			}
			c := New(cfg)

			_, err := c.Get(context.Background(), fmt.Sprintf("/?status=%d", tt.status))
			var respErr *ResponseError
			if !errors.As(err, &respErr) {
				t.Fatalf("Get() error = %v, want *ResponseError", err)
			}
			if respErr.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", respErr.StatusCode(), tt.status)
			}
			if diff := cmp.Diff(tt.wantCodes, fired); diff != "" {
				t.Errorf("fired callbacks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpecificCallbackBeforeWildcardOnlyFiresOnce(t *testing.T) {
	server := statusServer(t)

	var specific, wildcard int
	cfg := testConfig(server.URL)
	cfg.ErrorCallbacks = []ErrorCallback{
		OnError(func(context.Context, *Response) { specific++ }, 404),
		OnAnyError(func(context.Context, *Response) { wildcard++ }),
	}
	c := New(cfg)

	_, _ = c.Get(context.Background(), "/?status=500")
	if specific != 0 || wildcard != 1 {
		t.Errorf("after 500: specific=%d wildcard=%d, want 0 and 1", specific, wildcard)
	}

	_, _ = c.Get(context.Background(), "/?status=404")
	if specific != 1 || wildcard != 1 {
		t.Errorf("after 404: specific=%d wildcard=%d, want 1 and 1", specific, wildcard)
	}
}

func TestSuccessCallbacksRunInOrder(t *testing.T) {
	server := statusServer(t)

	var order []string
	cfg := testConfig(server.URL)
	cfg.SuccessCallbacks = []SuccessCallback{
		func(_ context.Context, r *Response) { order = append(order, fmt.Sprintf("first:%d", r.StatusCode)) },
		func(_ context.Context, r *Response) { order = append(order, fmt.Sprintf("second:%d", r.StatusCode)) },
	}
	cfg.ErrorCallbacks = []ErrorCallback{
		OnAnyError(func(context.Context, *Response) { t.Error("error callback ran on success") }),
	}
	c := New(cfg)

	resp, err := c.Get(context.Background(), "/?status=201")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := resp.Get("status").Int(); got != 201 {
		t.Errorf("body status = %d, want 201", got)
	}
	if diff := cmp.Diff([]string{"first:201", "second:201"}, order); diff != "" {
		t.Errorf("callback order mismatch (-want +got):\n%s", diff)
	}
}

func TestInterceptorAttemptCounter(t *testing.T) {
	server := statusServer(t)

	var first, second []int
	var order []string
	cfg := testConfig(server.URL)
	cfg.Interceptors = []Interceptor{
		func(_ context.Context, ic InterceptorContext) error {
			first = append(first, ic.Attempt)
			order = append(order, "interceptor")
			if ic.Client == nil || ic.Transport == nil || ic.Response == nil {
				t.Error("interceptor context is incomplete")
			}
			return nil
		},
		func(_ context.Context, ic InterceptorContext) error {
			second = append(second, ic.Attempt)
			return errors.New("ignored")
		},
	}
	cfg.ErrorCallbacks = []ErrorCallback{
		OnAnyError(func(context.Context, *Response) { order = append(order, "callback") }),
	}
	c := New(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, "/?status=500"); err == nil {
			t.Fatal("Get() error = nil, want error")
		}
	}
	if diff := cmp.Diff(map[int]int{0: 3, 1: 3}, c.attempts.snapshot()); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.Get(ctx, "/"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := c.attempts.snapshot(); len(got) != 0 {
		t.Errorf("attempts after success = %v, want empty", got)
	}

	if _, err := c.Get(ctx, "/?status=422"); err == nil {
		t.Fatal("Get() error = nil, want error")
	}

	if diff := cmp.Diff([]int{0, 1, 2, 0}, first); diff != "" {
		t.Errorf("first interceptor attempts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 0}, second); diff != "" {
		t.Errorf("second interceptor attempts mismatch (-want +got):\n%s", diff)
	}
	if order[0] != "interceptor" || order[1] != "callback" {
		t.Errorf("order = %v, want interceptors before callbacks", order)
	}
}

func TestNetworkErrorSkipsPipeline(t *testing.T) {
	errBoom := errors.New("connection refused")
	cfg := DefaultConfig()
	cfg.BaseURL = "http://formwire.invalid"
	cfg.Interceptors = []Interceptor{
		func(context.Context, InterceptorContext) error {
			t.Error("interceptor ran on network error")
			return nil
		},
	}
	cfg.ErrorCallbacks = []ErrorCallback{
		OnAnyError(func(context.Context, *Response) { t.Error("error callback ran on network error") }),
	}
	c := New(cfg, WithBaseTransport(roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errBoom
	})))

	_, err := c.Post(context.Background(), "/submit", BytesBody("text/plain", []byte("x")))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Post() error = %v, want %v", err, errBoom)
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		t.Errorf("network error reported as ResponseError")
	}
	c.Wait()
}

type sessionServer struct {
	*httptest.Server
	csrfHits   atomic.Int32
	submitHits atomic.Int32
	tokens     chan string
	alwaysFail bool
}

func newSessionServer(t *testing.T, alwaysFail bool) *sessionServer {
	t.Helper()
	s := &sessionServer{tokens: make(chan string, 8), alwaysFail: alwaysFail}
	mux := http.NewServeMux()
	mux.HandleFunc("/sanctum/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		s.csrfHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "fresh%3Dtoken", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		n := s.submitHits.Add(1)
		s.tokens <- r.Header.Get("X-XSRF-TOKEN")
		if n == 1 || s.alwaysFail {
			w.WriteHeader(StatusSessionExpired)
			fmt.Fprint(w, `{"message":"CSRF token mismatch."}`)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestSessionExpiredRefreshesAndResends(t *testing.T) {
	server := newSessionServer(t, false)

	var successes atomic.Int32
	var interceptorRuns atomic.Int32
	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.SuccessCallbacks = []SuccessCallback{
		func(context.Context, *Response) { successes.Add(1) },
	}
	cfg.Interceptors = []Interceptor{
		func(context.Context, InterceptorContext) error {
			interceptorRuns.Add(1)
			return nil
		},
	}
	c := New(cfg)

	_, err := c.Post(context.Background(), "/submit", BytesBody("text/plain", []byte("payload")))
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode() != StatusSessionExpired {
		t.Fatalf("Post() error = %v, want 419 ResponseError", err)
	}
	if !strings.Contains(err.Error(), "CSRF token mismatch.") {
		t.Errorf("Error() = %q, want server message", err.Error())
	}
	if got := interceptorRuns.Load(); got != 1 {
		t.Errorf("interceptor runs = %d, want 1 for the original 419", got)
	}

	c.Wait()

	if got := server.csrfHits.Load(); got != 1 {
		t.Errorf("csrf cookie requests = %d, want 1", got)
	}
	if got := server.submitHits.Load(); got != 2 {
		t.Errorf("submit requests = %d, want 2", got)
	}
	if got := successes.Load(); got != 1 {
		t.Errorf("success callbacks = %d, want 1 from the resend", got)
	}

	<-server.tokens
	if resent := <-server.tokens; resent != "fresh=token" {
		t.Errorf("resent X-XSRF-TOKEN = %q, want fresh=token", resent)
	}
}

func TestSessionExpiredResendIsNotRefreshedAgain(t *testing.T) {
	server := newSessionServer(t, true)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	c := New(cfg)

	if _, err := c.Post(context.Background(), "/submit", nil); err == nil {
		t.Fatal("Post() error = nil, want error")
	}
	c.Wait()

	if got := server.csrfHits.Load(); got != 1 {
		t.Errorf("csrf cookie requests = %d, want 1", got)
	}
	if got := server.submitHits.Load(); got != 2 {
		t.Errorf("submit requests = %d, want 2", got)
	}
}

func TestSessionExpiredWithoutAutoRefresh(t *testing.T) {
	server := newSessionServer(t, false)

	c := New(testConfig(server.URL))
	if _, err := c.Post(context.Background(), "/submit", nil); err == nil {
		t.Fatal("Post() error = nil, want error")
	}
	c.Wait()

	if got := server.csrfHits.Load(); got != 0 {
		t.Errorf("csrf cookie requests = %d, want 0", got)
	}
	if got := server.submitHits.Load(); got != 1 {
		t.Errorf("submit requests = %d, want 1", got)
	}
}

func TestSessionExpiredAfterCloseIsNotResent(t *testing.T) {
	server := newSessionServer(t, false)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	c := New(cfg)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := c.Post(context.Background(), "/submit", nil)
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode() != StatusSessionExpired {
		t.Fatalf("Post() error = %v, want 419 ResponseError", err)
	}
	c.Wait()

	if got := server.csrfHits.Load(); got != 0 {
		t.Errorf("csrf cookie requests = %d, want 0", got)
	}
	if got := server.submitHits.Load(); got != 1 {
		t.Errorf("submit requests = %d, want 1", got)
	}
}

func TestResponseDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":7,"name":"Ada","tags":["go","forms"]}`)
	}))
	t.Cleanup(server.Close)

	resp, err := New(testConfig(server.URL)).Get(context.Background(), "/users/7")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var got struct {
		ID   int      `json:"id"`
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := resp.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.ID != 7 || got.Name != "Ada" {
		t.Errorf("Decode() = %+v, want id 7 and name Ada", got)
	}
	if diff := cmp.Diff([]string{"go", "forms"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	bad := &Response{StatusCode: http.StatusOK, Body: []byte("<html>")}
	if err := bad.Decode(&got); err == nil {
		t.Error("Decode(non-JSON) error = nil, want error")
	}
}

func TestSetConfigMap(t *testing.T) {
	c := New(DefaultConfig())

	err := c.SetConfigMap(map[string]any{
		"autoRequestCsrfCookie": false,
		"csrfCookieUrl":         "/csrf",
		"timeout":               "5s",
		"withCredentials":       "false",
		"interceptors":          []Interceptor{func(context.Context, InterceptorContext) error { return nil }},
		"somethingElse":         42,
	})
	if err != nil {
		t.Fatalf("SetConfigMap() error = %v", err)
	}

	cfg := c.Config()
	if cfg.AutoRequestCSRFCookie {
		t.Error("AutoRequestCSRFCookie = true, want false")
	}
	if cfg.CSRFCookieURL != "/csrf" {
		t.Errorf("CSRFCookieURL = %q, want /csrf", cfg.CSRFCookieURL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", cfg.Timeout)
	}
	if cfg.WithCredentials {
		t.Error("WithCredentials = true, want false")
	}
	if len(cfg.Interceptors) != 1 {
		t.Errorf("Interceptors = %d, want 1", len(cfg.Interceptors))
	}
	if diff := cmp.Diff(DefaultConfig().Headers, cfg.Headers); diff != "" {
		t.Errorf("Headers changed (-want +got):\n%s", diff)
	}

	if err := c.SetConfigMap(map[string]any{"errorCallbacks": "nope"}); err == nil {
		t.Error("SetConfigMap(bad callbacks) error = nil, want error")
	}
}

func TestCollectorAndTracing(t *testing.T) {
	server := statusServer(t)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	collector := metrics.NewCollector()
	c := New(testConfig(server.URL), WithCollector(collector), WithTracer(tp.Tracer("test")))

	_, _ = c.Post(context.Background(), "/register", nil)
	_, _ = c.Post(context.Background(), "/register?status=422", nil)

	stats := collector.Stats(time.Second)
	if stats.Total != 2 || stats.Failures != 1 {
		t.Errorf("stats total=%d failures=%d, want 2 and 1", stats.Total, stats.Failures)
	}
	if got := stats.StatusBuckets["POST"]["422"]; got != 1 {
		t.Errorf("422 bucket = %d, want 1", got)
	}
	if got := stats.Endpoints["/register"].Total; got != 2 {
		t.Errorf("/register total = %d, want 2", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "HTTP POST" {
		t.Errorf("span name = %q, want HTTP POST", spans[0].Name)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, target, want string
		wantErr            bool
	}{
		{base: "https://app.test", target: "/register", want: "https://app.test/register"},
		{base: "https://app.test/api/", target: "users", want: "https://app.test/api/users"},
		{base: "https://app.test", target: "https://other.test/x", want: "https://other.test/x"},
		{base: "", target: "/relative", want: "/relative"},
		{base: "https://app.test", target: "  ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := resolveURL(tt.base, tt.target)
		if (err != nil) != tt.wantErr {
			t.Fatalf("resolveURL(%q, %q) error = %v, wantErr %v", tt.base, tt.target, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.target, got, tt.want)
		}
	}
}
