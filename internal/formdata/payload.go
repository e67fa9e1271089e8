package formdata

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
)

// Entry is a single key/value pair of a submission payload. File is set for
// binary entries, in which case Value holds the file name.
type Entry struct {
	Key   string
	Value string
	File  *File
}

// Payload is an ordered list of entries. Keys may repeat.
type Payload struct {
	entries []Entry
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{}
}

// Add appends a text entry.
func (p *Payload) Add(key, value string) {
	p.entries = append(p.entries, Entry{Key: key, Value: value})
}

// AddFile appends a binary entry.
func (p *Payload) AddFile(key string, file *File) {
	if file == nil {
		return
	}
	p.entries = append(p.entries, Entry{Key: key, Value: file.Name, File: file})
}

// Has reports whether any entry uses key.
func (p *Payload) Has(key string) bool {
	for _, e := range p.entries {
		if e.Key == key {
			return true
		}
	}
	return false
}

// Get returns the value of the first entry using key.
func (p *Payload) Get(key string) (string, bool) {
	for _, e := range p.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns every value recorded under key, in order.
func (p *Payload) Values(key string) []string {
	var out []string
	for _, e := range p.entries {
		if e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

// Keys returns the distinct keys in first-seen order.
func (p *Payload) Keys() []string {
	seen := make(map[string]struct{}, len(p.entries))
	keys := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		keys = append(keys, e.Key)
	}
	return keys
}

// Entries returns a copy of the entries.
func (p *Payload) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Len returns the number of entries.
func (p *Payload) Len() int {
	return len(p.entries)
}

// URLValues projects the text entries onto url.Values. File entries are skipped.
func (p *Payload) URLValues() url.Values {
	values := url.Values{}
	for _, e := range p.entries {
		if e.File != nil {
			continue
		}
		values.Add(e.Key, e.Value)
	}
	return values
}

// Multipart encodes the payload as a multipart/form-data body.
func (p *Payload) Multipart() (*Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, e := range p.entries {
		if e.File == nil {
			if err := w.WriteField(e.Key, e.Value); err != nil {
				return nil, fmt.Errorf("write field %q: %w", e.Key, err)
			}
			continue
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(e.Key), escapeQuotes(fileName(e.File))))
		contentType := e.File.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create part %q: %w", e.Key, err)
		}
		if _, err := part.Write(e.File.Data); err != nil {
			return nil, fmt.Errorf("write file %q: %w", e.Key, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return &Body{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}

// Body is an encoded request body that can be replayed.
type Body struct {
	contentType string
	data        []byte
}

// Reader returns a fresh reader over the encoded bytes.
func (b *Body) Reader() (io.Reader, error) {
	return bytes.NewReader(b.data), nil
}

// ContentType returns the multipart content type including the boundary.
func (b *Body) ContentType() string {
	return b.contentType
}

// Bytes returns the encoded body.
func (b *Body) Bytes() []byte {
	return b.data
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func fileName(f *File) string {
	if f.Name == "" {
		return "blob"
	}
	return f.Name
}
