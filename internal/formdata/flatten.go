package formdata

import "strconv"

// ArrayStyle selects how list items are keyed.
type ArrayStyle int

const (
	// ArrayStyleBrackets emits primitive list items as repeated "field[]" entries.
	ArrayStyleBrackets ArrayStyle = iota
	// ArrayStyleIndexed emits every list item as "field[i]".
	ArrayStyleIndexed
)

// Options control flattening and elision.
type Options struct {
	// RemoveNullValues drops null values and empty strings instead of
	// emitting them as "".
	RemoveNullValues bool
	ArrayStyle       ArrayStyle
	// DotNotation keys nested objects as "field.key" instead of "field[key]".
	DotNotation bool
}

// Flatten appends the entries for one field to p.
func Flatten(p *Payload, name string, v Value, opts Options) {
	switch v.kind {
	case KindNull:
		if opts.RemoveNullValues {
			return
		}
		p.Add(name, "")
	case KindString:
		if v.str == "" && opts.RemoveNullValues {
			return
		}
		p.Add(name, v.str)
	case KindBool:
		if v.flag {
			p.Add(name, "1")
		} else {
			p.Add(name, "0")
		}
	case KindNumber:
		p.Add(name, formatNumber(v.num))
	case KindBinary:
		p.AddFile(name, v.file)
	case KindList:
		for i, item := range v.list {
			if opts.ArrayStyle == ArrayStyleBrackets && isScalar(item) {
				Flatten(p, name+"[]", item, opts)
				continue
			}
			Flatten(p, name+"["+strconv.Itoa(i)+"]", item, opts)
		}
	case KindMap:
		for _, key := range v.Keys() {
			Flatten(p, nestedKey(name, key, opts), v.dict[key], opts)
		}
	}
}

func nestedKey(name, key string, opts Options) string {
	if opts.DotNotation {
		return name + "." + key
	}
	return name + "[" + key + "]"
}

func isScalar(v Value) bool {
	return v.kind != KindList && v.kind != KindMap
}
