package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func recordedErrors() *Errors {
	e := NewErrors()
	e.Record(map[string][]string{
		"domain":      {"The domain format is invalid."},
		"thanks_page": {"The thanks page format is invalid."},
		"webhook":     {"The webhook format is invalid.", "The webhook must be https."},
	})
	return e
}

func TestErrorsRecord(t *testing.T) {
	e := recordedErrors()

	if !e.Has("domain") || !e.Has("webhook") {
		t.Fatal("Has() = false for recorded field")
	}
	if msg, ok := e.Get("webhook"); !ok || msg != "The webhook format is invalid." {
		t.Errorf("Get(webhook) = %q, %v; want first message", msg, ok)
	}

	e.Record(map[string][]string{
		"domain": {"The domain format is invalid."},
		"empty":  {},
	})
	if e.Has("thanks_page") {
		t.Error("Record() kept a field from the previous recording")
	}
	if e.Has("empty") {
		t.Error("Record() kept a field without messages")
	}
	if _, ok := e.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
}

func TestErrorsRecordCopiesInput(t *testing.T) {
	in := map[string][]string{"name": {"required"}}
	e := NewErrors()
	e.Record(in)
	in["name"][0] = "mutated"
	in["other"] = []string{"x"}

	if msg, _ := e.Get("name"); msg != "required" {
		t.Errorf("Get(name) = %q, want required", msg)
	}
	if e.Has("other") {
		t.Error("Has(other) = true after mutating the recorded map")
	}
}

func TestErrorsAnyAndClear(t *testing.T) {
	e := recordedErrors()
	if !e.Any() {
		t.Fatal("Any() = false, want true")
	}
	e.Clear()
	if e.Any() {
		t.Error("Any() after Clear() = true, want false")
	}
	if got := e.GetAll(); got != nil {
		t.Errorf("GetAll() after Clear() = %v, want nil", got)
	}
}

func TestErrorsGetAll(t *testing.T) {
	want := []string{
		"The domain format is invalid.",
		"The thanks page format is invalid.",
		"The webhook format is invalid.",
	}
	if diff := cmp.Diff(want, recordedErrors().GetAll()); diff != "" {
		t.Errorf("GetAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorsClearMatching(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{name: "exact", pattern: "domain", want: []string{"thanks_page", "webhook"}},
		{name: "regexp", pattern: "^(thanks|web)", want: []string{"domain"}},
		{name: "invalid regexp falls back to substring", pattern: "thanks_(", want: []string{"domain", "thanks_page", "webhook"}},
		{name: "empty clears all", pattern: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := recordedErrors()
			e.ClearMatching(tt.pattern)
			got := []string{}
			for field := range e.All() {
				got = append(got, field)
			}
			if diff := cmp.Diff(tt.want, got, cmpSorted); diff != "" {
				t.Errorf("fields after ClearMatching(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}

func TestErrorsHasMatch(t *testing.T) {
	e := NewErrors()
	e.Record(map[string][]string{"address.city": {"required"}, "items.0.name": {"required"}})

	tests := []struct {
		pattern string
		want    bool
	}{
		{"address", true},
		{`^items\.\d+\.name$`, true},
		{"phone", false},
		{"items.[", false},
	}
	for _, tt := range tests {
		if got := e.HasMatch(tt.pattern); got != tt.want {
			t.Errorf("HasMatch(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
	if e.Has("address") {
		t.Error("Has(address) = true, want strict match only")
	}
}
