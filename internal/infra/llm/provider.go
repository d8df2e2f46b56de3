package llm

import "context"

// Backend is a loaded local generation capability. Implementations must be
// safe for concurrent use: one instance is shared by every conversation that
// selects the same model.
type Backend interface {
	// ChatCompletion decodes a full response for a formatted message list.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo returns static metadata about the backend.
	ModelInfo() ModelMeta
}

// StreamingBackend is a Backend that can decode incrementally. onPiece
// receives each newly decoded piece (a delta, not cumulative text); returning
// false asks the backend to stop early.
type StreamingBackend interface {
	Backend
	ChatStream(ctx context.Context, req ChatRequest, onPiece func(piece string) bool) error
}

// RemoteProvider is a hosted-model API binding. It is cheap to construct and
// is built per request from the current credential.
type RemoteProvider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*Completion, error)
}
