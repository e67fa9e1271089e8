package form

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Errors holds validation messages keyed by field name. A recorded field always
// has at least one message.
type Errors struct {
	mu     sync.RWMutex
	fields map[string][]string
}

// NewErrors returns an empty collection.
func NewErrors() *Errors {
	return &Errors{fields: make(map[string][]string)}
}

// Record replaces every recorded message with a copy of errs. Fields without
// messages are skipped.
func (e *Errors) Record(errs map[string][]string) {
	fields := make(map[string][]string, len(errs))
	for field, messages := range errs {
		if len(messages) == 0 {
			continue
		}
		fields[field] = append([]string(nil), messages...)
	}

	e.mu.Lock()
	e.fields = fields
	e.mu.Unlock()
}

// Has reports whether field has messages.
func (e *Errors) Has(field string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.fields[field]
	return ok
}

// HasMatch reports whether any recorded field name matches pattern. Patterns
// that are not valid regular expressions match as plain substrings.
func (e *Errors) HasMatch(pattern string) bool {
	match := matcher(pattern)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for field := range e.fields {
		if match(field) {
			return true
		}
	}
	return false
}

// Any reports whether anything is recorded.
func (e *Errors) Any() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fields) > 0
}

// Get returns the first message for field.
func (e *Errors) Get(field string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	messages, ok := e.fields[field]
	if !ok {
		return "", false
	}
	return messages[0], true
}

// GetAll returns the first message of every field, ordered by field name.
func (e *Errors) GetAll() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(e.fields))
	for field := range e.fields {
		names = append(names, field)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, field := range names {
		out = append(out, e.fields[field][0])
	}
	return out
}

// All returns a copy of every recorded message.
func (e *Errors) All() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]string, len(e.fields))
	for field, messages := range e.fields {
		out[field] = append([]string(nil), messages...)
	}
	return out
}

// Clear removes every recorded message.
func (e *Errors) Clear() {
	e.mu.Lock()
	e.fields = make(map[string][]string)
	e.mu.Unlock()
}

// ClearMatching removes every field whose name matches pattern.
func (e *Errors) ClearMatching(pattern string) {
	if pattern == "" {
		e.Clear()
		return
	}
	match := matcher(pattern)

	e.mu.Lock()
	defer e.mu.Unlock()
	for field := range e.fields {
		if match(field) {
			delete(e.fields, field)
		}
	}
}

func matcher(pattern string) func(string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return func(s string) bool { return strings.Contains(s, pattern) }
	}
	return re.MatchString
}
