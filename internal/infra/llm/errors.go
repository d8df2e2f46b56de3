package llm

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrResponseParse is returned when a provider body is not valid JSON.
	ErrResponseParse = errors.New("llm: malformed provider response")

	// ErrModelNotFound is returned by a local loader for an unknown model identifier.
	ErrModelNotFound = errors.New("llm: model not found")

	// ErrUnknownProvider is returned by the registry for an unregistered provider name.
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// HTTPError is a non-2xx answer from a provider.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string // truncated to maxErrorBody bytes
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// LogicalError is a successful HTTP exchange whose body reports a failure
// (e.g. {"error": "..."} with status 200), or a success carrying no text.
type LogicalError struct {
	Provider string
	Message  string
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// TransportError wraps network-level failures (DNS, refused, timeout).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const maxErrorBody = 512

// excerpt trims a provider body to a loggable size without splitting a
// multi-byte rune. Invalid UTF-8 is replaced so the text is safe to send as
// a websocket text frame.
func excerpt(b []byte) string {
	cut := len(b) > maxErrorBody
	if cut {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	if cut {
		s += "…"
	}
	return s
}
