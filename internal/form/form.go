package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/formwire/internal/config"
	"github.com/torosent/formwire/internal/formdata"
	"github.com/torosent/formwire/internal/request"
)

// MethodField carries the real verb when a form is not sent as POST.
const MethodField = "_method"

// ErrUndeclaredField is returned when writing a field the form was not built
// with.
var ErrUndeclaredField = errors.New("form does not have field")

// Method is the verb a form is submitted as.
type Method string

const (
	MethodPost  Method = "post"
	MethodPatch Method = "patch"
	MethodPut   Method = "put"
)

// Config controls payload building and submission.
type Config struct {
	Method           Method
	ResetAfterSend   bool
	RemoveNullValues bool
	URL              string
	ArrayStyle       formdata.ArrayStyle
	DotNotation      bool
}

// DefaultConfig returns a POST form that drops null values and resets after a
// successful submit.
func DefaultConfig() Config {
	return Config{
		Method:           MethodPost,
		ResetAfterSend:   true,
		RemoveNullValues: true,
	}
}

// ConfigFromSettings maps loaded form settings onto a Config.
func ConfigFromSettings(s config.FormConfig) Config {
	cfg := DefaultConfig()
	if s.Method != "" {
		cfg.Method = Method(strings.ToLower(string(s.Method)))
	}
	cfg.ResetAfterSend = s.ResetAfterSend
	cfg.RemoveNullValues = s.RemoveNullValues
	cfg.URL = s.URL
	if s.ArrayStyle == config.ArrayStyleIndexed {
		cfg.ArrayStyle = formdata.ArrayStyleIndexed
	}
	cfg.DotNotation = s.DotNotation
	return cfg
}

// State is the outcome of the latest submission.
type State int

const (
	StateIdle State = iota
	StateSending
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Form.
type Option func(*Form)

// WithClient sends submissions through c instead of the shared client.
func WithClient(c *request.Client) Option {
	return func(f *Form) {
		f.client = c
	}
}

// WithLogger sets the logger used for submission diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Form tracks field values, touched fields and server-side validation errors.
type Form struct {
	mu       sync.RWMutex
	cfg      Config
	data     map[string]formdata.Value
	original map[string]formdata.Value
	order    []string
	touched  []string
	state    State

	errors *Errors
	client *request.Client
	logger *zap.Logger
}

// New builds a form from initial values. Every key becomes a declared field and
// its value is snapshotted for Reset.
func New(values map[string]formdata.Value, cfg Config, opts ...Option) *Form {
	cfg.Method = Method(strings.ToLower(strings.TrimSpace(string(cfg.Method))))
	if cfg.Method == "" {
		cfg.Method = MethodPost
	}
	f := &Form{
		cfg:      cfg,
		data:     make(map[string]formdata.Value, len(values)+1),
		original: make(map[string]formdata.Value, len(values)+1),
		errors:   NewErrors(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.addField(name, values[name])
	}

	if cfg.Method != MethodPost {
		f.addField(MethodField, formdata.String(string(cfg.Method)))
	}
	return f
}

// NewFromAny builds a form from decoded JSON or YAML values.
func NewFromAny(values map[string]any, cfg Config, opts ...Option) (*Form, error) {
	converted, err := formdata.FromAnyMap(values)
	if err != nil {
		return nil, err
	}
	return New(converted, cfg, opts...), nil
}

// Config returns the form configuration.
func (f *Form) Config() Config {
	return f.cfg
}

// Errors returns the validation errors recorded by the last submission.
func (f *Form) Errors() *Errors {
	return f.errors
}

// Get returns the current value of name.
func (f *Form) Get(name string) (formdata.Value, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[name]
	return v, ok
}

// Set assigns a declared field.
func (f *Form) Set(name string, v formdata.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[name]; !ok {
		return fmt.Errorf("%w %q: add the field first", ErrUndeclaredField, name)
	}
	f.data[name] = v
	return nil
}

// Fields returns the declared field names in declaration order.
func (f *Form) Fields() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}

// Data returns a deep copy of the current values.
func (f *Form) Data() map[string]formdata.Value {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]formdata.Value, len(f.data))
	for name, v := range f.data {
		out[name] = v.Clone()
	}
	return out
}

// AddField declares name with value, replacing both the current value and the
// snapshot.
func (f *Form) AddField(name string, v formdata.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addField(name, v)
}

func (f *Form) addField(name string, v formdata.Value) {
	if _, ok := f.original[name]; !ok {
		f.order = append(f.order, name)
	}
	f.original[name] = v.Clone()
	f.data[name] = v.Clone()
}

// RemoveField drops name from the form. Unknown names are ignored.
func (f *Form) RemoveField(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.original[name]; !ok {
		return
	}
	delete(f.original, name)
	delete(f.data, name)
	for i, field := range f.order {
		if field == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// AddTouchedField marks name as modified by the user.
func (f *Form) AddTouchedField(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range f.touched {
		if field == name {
			return
		}
	}
	f.touched = append(f.touched, name)
}

// TouchedFields returns touched names in the order they were first touched.
func (f *Form) TouchedFields() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.touched...)
}

// ClearTouched forgets every touched field.
func (f *Form) ClearTouched() {
	f.mu.Lock()
	f.touched = nil
	f.mu.Unlock()
}

// Reset restores every field to its snapshot and clears the errors.
func (f *Form) Reset() {
	f.mu.Lock()
	for name, v := range f.original {
		f.data[name] = v.Clone()
	}
	f.mu.Unlock()
	f.errors.Clear()
}

// DirtyFields lists declared fields whose value differs from the snapshot.
func (f *Form) DirtyFields() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var dirty []string
	for _, name := range f.order {
		if !f.data[name].Equal(f.original[name]) {
			dirty = append(dirty, name)
		}
	}
	return dirty
}

// IsDirty reports whether any field differs from its snapshot.
func (f *Form) IsDirty() bool {
	return len(f.DirtyFields()) > 0
}

// Serialize returns the current values of the declared fields as plain Go
// values.
func (f *Form) Serialize() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]any, len(f.original))
	for name := range f.original {
		out[name] = f.data[name].Interface()
	}
	return out
}

// SerializeJSON returns Serialize encoded as a JSON object.
func (f *Form) SerializeJSON() (string, error) {
	data, err := json.Marshal(f.Serialize())
	if err != nil {
		return "", fmt.Errorf("serialize form: %w", err)
	}
	return string(data), nil
}

// BuildPayload flattens the declared fields into submission entries.
func (f *Form) BuildPayload() *formdata.Payload {
	f.mu.RLock()
	defer f.mu.RUnlock()
	opts := formdata.Options{
		RemoveNullValues: f.cfg.RemoveNullValues,
		ArrayStyle:       f.cfg.ArrayStyle,
		DotNotation:      f.cfg.DotNotation,
	}
	p := formdata.NewPayload()
	for _, name := range f.order {
		formdata.Flatten(p, name, f.data[name], opts)
	}
	return p
}

// State returns the outcome of the latest submission.
func (f *Form) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Processing reports whether a submission is in flight.
func (f *Form) Processing() bool {
	return f.State() == StateSending
}

func (f *Form) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}
