package formdata

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// File is a binary blob carried by a form field.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Value is a closed variant over the shapes a form field can take.
// The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	flag bool
	list []Value
	dict map[string]Value
	file *File
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a floating point number.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int wraps an integer as a Number.
func Int(i int) Value { return Value{kind: KindNumber, num: float64(i)} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// List wraps an ordered list of values.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Map wraps a nested object. The map is copied.
func Map(fields map[string]Value) Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Value{kind: KindMap, dict: out}
}

// Binary wraps a file blob.
func Binary(name, contentType string, data []byte) Value {
	return Value{kind: KindBinary, file: &File{Name: name, ContentType: contentType, Data: data}}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a String.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a Number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the boolean payload and whether v is a Bool.
func (v Value) Boolean() (bool, bool) { return v.flag, v.kind == KindBool }

// Items returns the list items. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Field returns the nested value stored under key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	out, ok := v.dict[key]
	return out, ok
}

// Keys returns the nested map keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// File returns the binary payload, or nil.
func (v Value) File() *File {
	if v.kind != KindBinary {
		return nil
	}
	return v.file
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, list: out}
	case KindMap:
		out := make(map[string]Value, len(v.dict))
		for k, item := range v.dict {
			out[k] = item.Clone()
		}
		return Value{kind: KindMap, dict: out}
	case KindBinary:
		if v.file == nil {
			return Value{kind: KindBinary}
		}
		f := *v.file
		f.Data = append([]byte(nil), v.file.Data...)
		return Value{kind: KindBinary, file: &f}
	default:
		return v
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.flag == other.flag
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for k, item := range v.dict {
			o, ok := other.dict[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	case KindBinary:
		a, b := v.file, other.file
		if a == nil || b == nil {
			return a == b
		}
		return a.Name == b.Name && a.ContentType == b.ContentType && bytes.Equal(a.Data, b.Data)
	}
	return false
}

// Interface converts v into plain Go values suitable for encoding/json.
// Binary values collapse to their file name.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53 {
			return int64(v.num)
		}
		return v.num
	case KindBool:
		return v.flag
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.dict))
		for k, item := range v.dict {
			out[k] = item.Interface()
		}
		return out
	case KindBinary:
		if v.file == nil {
			return nil
		}
		return v.file.Name
	default:
		return nil
	}
}

// GoString renders v for test failure output.
func (v Value) GoString() string {
	return fmt.Sprintf("formdata.%s(%#v)", v.kind, v.Interface())
}

// FromAny converts a decoded JSON or YAML tree into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Binary("", "application/octet-stream", x), nil
	case *File:
		if x == nil {
			return Null(), nil
		}
		return Binary(x.Name, x.ContentType, x.Data), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = v
		}
		return Value{kind: KindMap, dict: fields}, nil
	case map[any]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			key := fmt.Sprint(k)
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			fields[key] = v
		}
		return Value{kind: KindMap, dict: fields}, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return Value{kind: KindList, list: items}, nil
	}

	if s, ok := raw.(fmt.Stringer); ok {
		return String(s.String()), nil
	}
	return Value{}, fmt.Errorf("unsupported field value type %T", raw)
}

// FromAnyMap converts every entry of a decoded object.
func FromAnyMap(raw map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for k, item := range raw {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
