package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
)

// statusError is implemented by errors that carry the HTTP status of a
// rejected response.
type statusError interface {
	StatusCode() int
}

// ErrorKind returns the label err is counted under in Stats.Errors.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Context deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "Context canceled"
	}

	var se statusError
	if errors.As(err, &se) {
		return fmt.Sprintf("HTTP %d", se.StatusCode())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op != "" {
		return fmt.Sprintf("Network error (%s)", opErr.Op)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "Transport error"
	}
	return typeLabel(fmt.Sprintf("%T", err))
}

// typeLabel turns a Go type name such as "*pkg.someFailure" into
// "Some Failure (pkg)".
func typeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	pkg := ""
	if idx := strings.Index(name, "."); idx != -1 {
		pkg, name = name[:idx], name[idx+1:]
	}

	label := splitWords(name)
	if pkg != "" && pkg != "main" && pkg != "errors" {
		return fmt.Sprintf("%s (%s)", label, pkg)
	}
	if pkg == "errors" {
		return "Error"
	}
	return label
}

// splitWords breaks a camel-case identifier into capitalized words, keeping
// acronyms such as EOF intact.
func splitWords(name string) string {
	runes := []rune(name)
	var words []string
	start := 0
	for i := 1; i <= len(runes); i++ {
		boundary := i == len(runes)
		if !boundary {
			r, prev := runes[i], runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			boundary = unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower))
		}
		if boundary {
			word := []rune(string(runes[start:i]))
			if !isAcronym(word) {
				word = []rune(strings.ToLower(string(word)))
				word[0] = unicode.ToUpper(word[0])
			}
			words = append(words, string(word))
			start = i
		}
	}
	return strings.Join(words, " ")
}

func isAcronym(word []rune) bool {
	for _, r := range word {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return len(word) > 1
}
