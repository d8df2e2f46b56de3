package llm

import (
	"context"
	"strings"
	"time"
)

// EchoPrefix is the reply prefix of the simulated local backend.
const EchoPrefix = "Local model response to: "

// EchoBackend simulates an on-device model: it answers the last user message
// with EchoPrefix + message, streamed one word at a time.
type EchoBackend struct {
	id    string
	delay time.Duration
}

// NewEchoBackend returns an echo backend for modelID; delay is the pause
// between streamed words (zero in tests).
func NewEchoBackend(modelID string, delay time.Duration) *EchoBackend {
	return &EchoBackend{id: modelID, delay: delay}
}

// IsEchoModel reports whether a local model identifier selects the echo backend.
func IsEchoModel(modelID string) bool {
	return modelID == "echo" || strings.HasPrefix(modelID, "echo:")
}

func (e *EchoBackend) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: e.reply(req), StopReason: "stop"}, nil
}

func (e *EchoBackend) ChatStream(ctx context.Context, req ChatRequest, onPiece func(string) bool) error {
	words := strings.SplitAfter(e.reply(req), " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if e.delay > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !onPiece(w) {
			return nil
		}
	}
	return nil
}

func (e *EchoBackend) ModelInfo() ModelMeta {
	return ModelMeta{ID: e.id, Provider: "echo"}
}

func (e *EchoBackend) reply(req ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return EchoPrefix + req.Messages[i].Content
		}
	}
	return EchoPrefix
}
