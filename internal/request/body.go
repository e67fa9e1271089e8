package request

import (
	"bytes"
	"encoding/json"
	"io"
)

// Body is a replayable request body. Reader returns a fresh reader on every
// call so a request can be resent.
type Body interface {
	Reader() (io.Reader, error)
	ContentType() string
}

type jsonBody struct {
	value any
}

// JSONBody encodes v as application/json.
func JSONBody(v any) Body {
	return jsonBody{value: v}
}

func (b jsonBody) Reader() (io.Reader, error) {
	data, err := json.Marshal(b.value)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func (b jsonBody) ContentType() string {
	return "application/json"
}

type bytesBody struct {
	contentType string
	data        []byte
}

// BytesBody sends data verbatim with the given content type.
func BytesBody(contentType string, data []byte) Body {
	return bytesBody{contentType: contentType, data: data}
}

func (b bytesBody) Reader() (io.Reader, error) {
	return bytes.NewReader(b.data), nil
}

func (b bytesBody) ContentType() string {
	return b.contentType
}
