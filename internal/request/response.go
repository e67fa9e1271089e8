package request

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// Request describes a call sent through a Client.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   Body
}

// Option customizes a single request.
type Option func(*Request)

// WithHeader sets a header on a single request. It wins over client defaults.
func WithHeader(name, value string) Option {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(name, value)
	}
}

func (r *Request) build(ctx context.Context, target string) (*http.Request, error) {
	var reader io.Reader
	if r.Body != nil {
		rd, err := r.Body.Reader()
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = rd
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range r.Header {
		req.Header[key] = append([]string(nil), values...)
	}
	if r.Body != nil {
		if ct := r.Body.ContentType(); ct != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", ct)
		}
		body := r.Body
		req.GetBody = func() (io.ReadCloser, error) {
			rd, err := body.Reader()
			if err != nil {
				return nil, err
			}
			return io.NopCloser(rd), nil
		}
	}
	return req, nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *Request
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get looks up a gjson path in the response body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ResponseError is returned for responses with a non-2xx status.
type ResponseError struct {
	Response *Response
}

func (e *ResponseError) Error() string {
	if msg := e.Response.Get("message").String(); msg != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Response.StatusCode, msg)
	}
	return fmt.Sprintf("request failed with status %d", e.Response.StatusCode)
}

// StatusCode returns the response status.
func (e *ResponseError) StatusCode() int {
	return e.Response.StatusCode
}
