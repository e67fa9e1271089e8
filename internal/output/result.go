package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Result is the outcome of one form submission as shown to the user.
type Result struct {
	Action     string              `json:"action"`
	URL        string              `json:"url"`
	Status     int                 `json:"status"`
	OK         bool                `json:"ok"`
	Message    string              `json:"message,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Body       json.RawMessage     `json:"body,omitempty"`
	RawBody    string              `json:"raw_body,omitempty"`
	DurationMs float64             `json:"duration_ms"`
}

// SetBody stores a response body, keeping it as JSON when it parses as JSON.
func (r *Result) SetBody(body []byte) {
	if len(body) == 0 {
		return
	}
	if gjson.ValidBytes(body) {
		r.Body = json.RawMessage(body)
		return
	}
	r.RawBody = string(body)
}

// PrintResult writes a human-readable summary of a submission.
func PrintResult(w io.Writer, r Result) {
	outcome := "accepted"
	if !r.OK {
		outcome = "rejected"
	}
	if r.Status > 0 {
		fmt.Fprintf(w, "%s %s: %s (HTTP %d)\n", r.Action, r.URL, outcome, r.Status)
	} else {
		fmt.Fprintf(w, "%s %s: %s\n", r.Action, r.URL, outcome)
	}
	if r.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", r.Message)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nField Errors:")
		fields := make([]string, 0, len(r.Errors))
		for field := range r.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(w, "  %s: %s\n", field, strings.Join(r.Errors[field], "; "))
		}
		return
	}

	switch {
	case len(r.Body) > 0:
		fmt.Fprintf(w, "\n%s", pretty.Pretty(r.Body))
	case r.RawBody != "":
		fmt.Fprintf(w, "\n%s\n", r.RawBody)
	}
}

// PrintJSONResult writes r as indented JSON.
func PrintJSONResult(w io.Writer, r Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
