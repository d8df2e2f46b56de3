package generation

import (
	"fmt"
	"strings"
)

// FailureKind classifies a dispatch or generation failure.
type FailureKind int

const (
	NotConfigured FailureKind = iota + 1
	ModelLoadFailed
	ProviderRequestError
	ProviderHTTPError
	ProviderResponseParseError
	ProviderLogicalError
	GenerationRuntimeError
	ConnectionLost
)

var failureKindNames = map[FailureKind]string{
	NotConfigured:              "not_configured",
	ModelLoadFailed:            "model_load_failed",
	ProviderRequestError:       "provider_request_error",
	ProviderHTTPError:          "provider_http_error",
	ProviderResponseParseError: "provider_response_parse_error",
	ProviderLogicalError:       "provider_logical_error",
	GenerationRuntimeError:     "generation_runtime_error",
	ConnectionLost:             "connection_lost",
}

func (k FailureKind) String() string {
	if s, ok := failureKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Failure is a typed, recoverable generation outcome. Detail never holds the
// unmasked credential.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
	Err        error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.String())
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", f.StatusCode)
	}
	if f.Detail != "" {
		b.WriteString(": ")
		b.WriteString(f.Detail)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage is the text sent to the client and stored as the turn's
// response. It carries no internal error chain.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case NotConfigured:
		if f.Detail != "" {
			return "No model configured: " + f.Detail
		}
		return "No model configured"
	case ModelLoadFailed:
		return "Error: the local model could not be loaded"
	case ProviderRequestError:
		return "Error: the model provider could not be reached"
	case ProviderHTTPError:
		if f.Detail != "" {
			return fmt.Sprintf("Error: the model provider returned HTTP %d: %s", f.StatusCode, f.Detail)
		}
		return fmt.Sprintf("Error: the model provider returned HTTP %d", f.StatusCode)
	case ProviderResponseParseError:
		return "Error: the model provider returned an unreadable response"
	case ProviderLogicalError:
		return "Error: the model provider reported: " + f.Detail
	case GenerationRuntimeError:
		return "Error: generation failed"
	}
	return "Error: request failed"
}

// redact replaces every occurrence of secret in s with its masked form.
func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, MaskSecret(secret))
}
