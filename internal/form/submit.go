package form

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/torosent/formwire/internal/request"
)

// ErrNoURL is returned when neither the call nor the form config names a
// submission URL.
var ErrNoURL = errors.New("no URL specified")

// SubmitError describes a submission the server rejected.
type SubmitError struct {
	Status  int
	Body    []byte
	Errors  map[string][]string
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("submit failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("submit failed with status %d", e.Status)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Submit sends the form as multipart/form-data. url overrides the configured
// URL. On success the form is reset when ResetAfterSend is set; on a rejected
// submission the "errors" map of the response body is recorded.
func (f *Form) Submit(ctx context.Context, url string) (*request.Response, error) {
	return f.send(ctx, url, false)
}

// Validate sends the form with a validation marker and the touched field names
// so the server checks without committing. The form is never reset.
func (f *Form) Validate(ctx context.Context, url string) (*request.Response, error) {
	return f.send(ctx, url, true)
}

func (f *Form) send(ctx context.Context, url string, validateOnly bool) (*request.Response, error) {
	f.errors.Clear()

	target := strings.TrimSpace(url)
	if target == "" {
		target = strings.TrimSpace(f.cfg.URL)
	}
	if target == "" {
		return nil, ErrNoURL
	}

	payload := f.BuildPayload()
	if validateOnly {
		payload.Add("validate", "1")
		for _, name := range f.TouchedFields() {
			payload.Add("fields[]", name)
		}
	}
	body, err := payload.Multipart()
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	client := f.client
	if client == nil {
		client = request.Instance()
	}

	f.setState(StateSending)
	f.logger.Debug("submitting form",
		zap.String("url", target),
		zap.Bool("validate", validateOnly),
		zap.Int("entries", payload.Len()),
	)

	resp, err := client.Post(ctx, target, body)
	if err != nil {
		f.setState(StateFailed)
		var respErr *request.ResponseError
		if !errors.As(err, &respErr) {
			return nil, err
		}
		submitErr := newSubmitError(respErr)
		if len(submitErr.Errors) > 0 {
			f.errors.Record(submitErr.Errors)
		}
		f.logger.Debug("form rejected",
			zap.Int("status", submitErr.Status),
			zap.Int("field_errors", len(submitErr.Errors)),
		)
		return nil, submitErr
	}

	if f.cfg.ResetAfterSend && !validateOnly {
		f.Reset()
	}
	f.errors.Clear()
	f.setState(StateSucceeded)
	return resp, nil
}

func newSubmitError(respErr *request.ResponseError) *SubmitError {
	resp := respErr.Response
	return &SubmitError{
		Status:  resp.StatusCode,
		Body:    resp.Body,
		Errors:  parseFieldErrors(resp.Get("errors")),
		Message: resp.Get("message").String(),
		Err:     respErr,
	}
}

// parseFieldErrors reads a {"field": ["message", ...]} object. A bare string
// is treated as a single message.
func parseFieldErrors(result gjson.Result) map[string][]string {
	if !result.IsObject() {
		return nil
	}
	out := make(map[string][]string)
	result.ForEach(func(key, value gjson.Result) bool {
		var messages []string
		switch {
		case value.IsArray():
			for _, item := range value.Array() {
				messages = append(messages, item.String())
			}
		case value.Type == gjson.String:
			messages = []string{value.String()}
		}
		if len(messages) > 0 {
			out[key.String()] = messages
		}
		return true
	})
	return out
}
