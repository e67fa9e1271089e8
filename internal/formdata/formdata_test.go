package formdata_test

import (
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/torosent/formwire/internal/formdata"
)

type kv struct {
	Key   string
	Value string
}

func flatten(name string, v formdata.Value, opts formdata.Options) []kv {
	p := formdata.NewPayload()
	formdata.Flatten(p, name, v, opts)
	var out []kv
	for _, e := range p.Entries() {
		out = append(out, kv{Key: e.Key, Value: e.Value})
	}
	return out
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value formdata.Value
		opts  formdata.Options
		want  []kv
	}{
		{
			name:  "null removed",
			field: "x",
			value: formdata.Null(),
			opts:  formdata.Options{RemoveNullValues: true},
			want:  nil,
		},
		{
			name:  "null kept as empty string",
			field: "x",
			value: formdata.Null(),
			want:  []kv{{"x", ""}},
		},
		{
			name:  "empty string removed",
			field: "x",
			value: formdata.String(""),
			opts:  formdata.Options{RemoveNullValues: true},
			want:  nil,
		},
		{
			name:  "booleans",
			field: "flags",
			value: formdata.List(formdata.Bool(true), formdata.Bool(false)),
			want:  []kv{{"flags[]", "1"}, {"flags[]", "0"}},
		},
		{
			name:  "numbers use shortest form",
			field: "n",
			value: formdata.List(formdata.Int(3), formdata.Number(2.5)),
			opts:  formdata.Options{ArrayStyle: formdata.ArrayStyleIndexed},
			want:  []kv{{"n[0]", "3"}, {"n[1]", "2.5"}},
		},
		{
			name:  "nested map brackets",
			field: "address",
			value: formdata.Map(map[string]formdata.Value{
				"street": formdata.String("Main"),
				"geo": formdata.Map(map[string]formdata.Value{
					"lat": formdata.Number(1.5),
				}),
			}),
			want: []kv{{"address[geo][lat]", "1.5"}, {"address[street]", "Main"}},
		},
		{
			name:  "nested map dot notation",
			field: "address",
			value: formdata.Map(map[string]formdata.Value{
				"city": formdata.String("Oslo"),
			}),
			opts: formdata.Options{DotNotation: true},
			want: []kv{{"address.city", "Oslo"}},
		},
		{
			name:  "list of objects is indexed",
			field: "items",
			value: formdata.List(
				formdata.Map(map[string]formdata.Value{"id": formdata.Int(7)}),
				formdata.String("plain"),
			),
			want: []kv{{"items[0][id]", "7"}, {"items[]", "plain"}},
		},
		{
			name:  "null inside list honours elision",
			field: "l",
			value: formdata.List(formdata.Null(), formdata.String("a")),
			opts:  formdata.Options{RemoveNullValues: true},
			want:  []kv{{"l[]", "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flatten(tt.field, tt.value, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Flatten() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPayloadMultipart(t *testing.T) {
	p := formdata.NewPayload()
	p.Add("name", "alice")
	p.Add("tags[]", "a")
	p.Add("tags[]", "b")
	p.AddFile("avatar", &formdata.File{Name: "me.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})

	body, err := p.Multipart()
	if err != nil {
		t.Fatalf("Multipart() error = %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(body.ContentType())
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("media type = %q, want multipart/form-data", mediaType)
	}

	r, err := body.Reader()
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	form, err := multipart.NewReader(r, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	defer form.RemoveAll()

	if diff := cmp.Diff([]string{"a", "b"}, form.Value["tags[]"]); diff != "" {
		t.Errorf("tags[] mismatch (-want +got):\n%s", diff)
	}
	if got := form.Value["name"]; len(got) != 1 || got[0] != "alice" {
		t.Errorf("name = %v, want [alice]", got)
	}

	files := form.File["avatar"]
	if len(files) != 1 {
		t.Fatalf("avatar parts = %d, want 1", len(files))
	}
	if files[0].Filename != "me.png" {
		t.Errorf("filename = %q, want me.png", files[0].Filename)
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "\x89PNG" {
		t.Errorf("file data = %q", data)
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := formdata.NewPayload()
	p.Add("a", "1")
	p.Add("b", "2")
	p.Add("a", "3")

	if !p.Has("a") || p.Has("c") {
		t.Fatalf("Has() wrong: a=%v c=%v", p.Has("a"), p.Has("c"))
	}
	if v, ok := p.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v; want 1, true", v, ok)
	}
	if diff := cmp.Diff([]string{"1", "3"}, p.Values("a")); diff != "" {
		t.Errorf("Values(a) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, p.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if got := p.URLValues().Encode(); got != "a=1&a=3&b=2" {
		t.Errorf("URLValues().Encode() = %q", got)
	}
}

func TestFromAny(t *testing.T) {
	raw := map[string]any{
		"name":   "bob",
		"age":    42,
		"active": true,
		"tags":   []any{"x", 1.5},
		"meta":   map[any]any{"k": nil},
	}

	got, err := formdata.FromAnyMap(raw)
	if err != nil {
		t.Fatalf("FromAnyMap() error = %v", err)
	}

	want := map[string]formdata.Value{
		"name":   formdata.String("bob"),
		"age":    formdata.Int(42),
		"active": formdata.Bool(true),
		"tags":   formdata.List(formdata.String("x"), formdata.Number(1.5)),
		"meta":   formdata.Map(map[string]formdata.Value{"k": formdata.Null()}),
	}
	equal := cmp.Comparer(func(a, b formdata.Value) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, equal); diff != "" {
		t.Fatalf("FromAnyMap() mismatch (-want +got):\n%s", diff)
	}

	if _, err := formdata.FromAny(struct{}{}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("FromAny(struct{}) error = %v, want unsupported", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := formdata.Map(map[string]formdata.Value{
		"list": formdata.List(formdata.Int(1)),
		"file": formdata.Binary("a.txt", "text/plain", []byte("abc")),
	})
	clone := orig.Clone()
	if !clone.Equal(orig) {
		t.Fatalf("Clone() not equal to original")
	}

	f, _ := clone.Field("file")
	f.File().Data[0] = 'z'
	of, _ := orig.Field("file")
	if string(of.File().Data) != "abc" {
		t.Fatalf("mutating clone changed original: %q", of.File().Data)
	}
}

func TestInterface(t *testing.T) {
	v := formdata.Map(map[string]formdata.Value{
		"n":    formdata.Int(2),
		"f":    formdata.Number(0.5),
		"none": formdata.Null(),
	})
	want := map[string]any{"n": int64(2), "f": 0.5, "none": nil}
	if diff := cmp.Diff(want, v.Interface()); diff != "" {
		t.Fatalf("Interface() mismatch (-want +got):\n%s", diff)
	}
}
