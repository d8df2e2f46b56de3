// Package llm holds the generation backend adapters: in-process/local
// backends (echo, Ollama) that the backend cache loads once per model, and
// remote hosted-model providers called once per prompt.
package llm

// Chat roles used in formatted message lists.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTokens bounds every generation call (remote max_new_tokens and
// local num_predict).
const DefaultMaxTokens = 512

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the input for a local chat completion.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the output from a non-streaming chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // "stop" | "length" | ""
}

// GenerateRequest is the input for a remote provider call. Prompt is the
// fully assembled prompt (system prompt already folded in).
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is a remote provider result. Unrecognized is set when the
// provider answered successfully but in a shape we do not know; Text then
// holds the raw body.
type Completion struct {
	Text         string
	Unrecognized bool
}

// ModelMeta describes the model / backend identity.
type ModelMeta struct {
	ID       string // e.g. "llama3.2:3b", "echo"
	Provider string // e.g. "ollama", "echo"
}
