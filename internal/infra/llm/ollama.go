package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	// ollamaKeepAlive keeps loaded weights resident between prompts. The
	// backend cache holds the handle for the process lifetime, so the daemon
	// should too.
	ollamaKeepAlive = "-1"
)

// OllamaBackend implements StreamingBackend against a running Ollama instance.
// Endpoints used:
//   - POST /api/show      checks the model exists (Load)
//   - POST /api/generate  empty prompt, pulls weights into memory (Load)
//   - POST /api/chat      chat completion, streaming (NDJSON) or not
//   - GET  /api/tags      health check
type OllamaBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaBackend creates an OllamaBackend. A nil client gets one without a
// global timeout: streams are bounded by the request context instead.
func NewOllamaBackend(baseURL, model string, client *http.Client) *OllamaBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaBackend{baseURL: baseURL, model: model, httpClient: client}
}

// ─── internal Ollama JSON types ──────────────────────────────────────────────

type ollamaShowRequest struct {
	Model string `json:"model"`
}

type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	KeepAlive string `json:"keep_alive"`
	Stream    bool   `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model     string              `json:"model"`
	Messages  []ollamaChatMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
	Options   map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	DoneReason string            `json:"done_reason"`
	Done       bool              `json:"done"`
	Error      string            `json:"error,omitempty"`
}

// ─── load ────────────────────────────────────────────────────────────────────

// Load verifies the model exists and asks the daemon to bring its weights
// into memory. This is the expensive step the backend cache runs once.
func (p *OllamaBackend) Load(ctx context.Context) error {
	show, err := json.Marshal(ollamaShowRequest{Model: p.model})
	if err != nil {
		return err
	}
	body, err := p.doPost(ctx, "/api/show", show)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("ollama %q: %w", p.model, ErrModelNotFound)
		}
		return err
	}
	body.Close() //nolint:errcheck

	warm, err := json.Marshal(ollamaGenerateRequest{Model: p.model, KeepAlive: ollamaKeepAlive})
	if err != nil {
		return err
	}
	body, err = p.doPost(ctx, "/api/generate", warm)
	if err != nil {
		return fmt.Errorf("ollama warm-up %q: %w", p.model, err)
	}
	defer body.Close()
	_, _ = io.Copy(io.Discard, body)
	return nil
}

// ─── Backend implementation ─────────────────────────────────────────────────

// ChatCompletion performs a non-streaming chat via POST /api/chat.
func (p *OllamaBackend) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := p.chatPayload(req, false)
	if err != nil {
		return nil, err
	}

	respBody, err := p.doPost(ctx, "/api/chat", payload)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var ollamaResp ollamaChatResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&ollamaResp); decodeErr != nil {
		return nil, fmt.Errorf("decode chat response: %w", decodeErr)
	}
	if ollamaResp.Error != "" {
		return nil, &LogicalError{Provider: "ollama", Message: ollamaResp.Error}
	}
	return &ChatResponse{
		Content:    ollamaResp.Message.Content,
		StopReason: ollamaResp.DoneReason,
	}, nil
}

// ChatStream performs a streaming chat via POST /api/chat (stream=true). The
// daemon answers with one JSON object per line until done=true.
func (p *OllamaBackend) ChatStream(ctx context.Context, req ChatRequest, onPiece func(string) bool) error {
	payload, err := p.chatPayload(req, true)
	if err != nil {
		return err
	}

	respBody, err := p.doPost(ctx, "/api/chat", payload)
	if err != nil {
		return err
	}
	defer respBody.Close()

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return &LogicalError{Provider: "ollama", Message: chunk.Error}
		}
		if chunk.Message.Content != "" && !onPiece(chunk.Message.Content) {
			return nil
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Provider: "ollama", Err: err}
	}
	return fmt.Errorf("ollama stream ended without done marker")
}

// ModelInfo returns static metadata for this backend.
func (p *OllamaBackend) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: "ollama"}
}

// HealthCheck calls GET /api/tags and returns nil if Ollama is reachable.
func (p *OllamaBackend) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama healthcheck: status %d", resp.StatusCode)
	}
	return nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (p *OllamaBackend) chatPayload(req ChatRequest, stream bool) ([]byte, error) {
	msgs := make([]ollamaChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollamaChatMessage(m)
	}
	return json.Marshal(ollamaChatRequest{
		Model:     p.model,
		Messages:  msgs,
		Stream:    stream,
		KeepAlive: ollamaKeepAlive,
		Options:   buildChatOptions(req),
	})
}

// buildChatOptions converts ChatRequest fields into the Ollama options map.
// Temperature is always sent: the caller has already resolved its default,
// and 0 is a valid setting.
func buildChatOptions(req ChatRequest) map[string]any {
	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens != 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return opts
}

// doPost sends a POST request to baseURL+path and returns the response body.
// Caller is responsible for closing the returned ReadCloser.
func (p *OllamaBackend) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: "ollama", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return nil, &HTTPError{Provider: "ollama", StatusCode: resp.StatusCode, Body: excerpt(raw)}
	}
	return resp.Body, nil
}

// ─── local loader ────────────────────────────────────────────────────────────

// LocalLoader resolves a local model identifier to a loaded backend: "echo"
// or "echo:<name>" selects the simulated backend, anything else an Ollama model.
type LocalLoader struct {
	OllamaBaseURL string
	HTTPClient    *http.Client
	EchoDelay     time.Duration
}

// Load constructs and warms the backend for modelID.
func (l LocalLoader) Load(ctx context.Context, modelID string) (Backend, error) {
	if modelID == "" {
		return nil, fmt.Errorf("local loader: empty model identifier: %w", ErrModelNotFound)
	}
	if IsEchoModel(modelID) {
		return NewEchoBackend(modelID, l.EchoDelay), nil
	}
	b := NewOllamaBackend(l.OllamaBaseURL, modelID, l.HTTPClient)
	if err := b.Load(ctx); err != nil {
		return nil, err
	}
	return b, nil
}
