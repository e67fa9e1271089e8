// Package formdata models form field values and turns them into submission payloads.
//
// A [Value] is a closed variant (null, string, number, bool, list, nested map or
// binary blob). [Flatten] projects a named value onto a [Payload], expanding nested
// structures into bracketed keys and applying the elision rules:
//   - null is dropped when RemoveNullValues is set, otherwise sent as ""
//   - "" is dropped when RemoveNullValues is set
//   - booleans are sent as "1" and "0"
//   - binary values are passed through as file parts
//
// A payload encodes to multipart/form-data with [Payload.Multipart]:
//
//	p := formdata.NewPayload()
//	formdata.Flatten(p, "tags", formdata.List(formdata.String("a"), formdata.String("b")), formdata.Options{})
//	body, err := p.Multipart()
package formdata
