package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/matiasleandrokruk/chatroute/internal/infra/llm"
)

// memHistory is an in-memory HistoryProvider.
type memHistory struct {
	mu         sync.Mutex
	turns      []Turn
	nextID     int64
	priorCalls int
	completes  int
}

func (h *memHistory) PriorTurns(_ context.Context, conversationID string) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.priorCalls++
	var out []Turn
	for _, t := range h.turns {
		if t.ConversationID == conversationID && t.Response != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func (h *memHistory) AppendTurn(_ context.Context, conversationID, prompt string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.turns = append(h.turns, Turn{ID: h.nextID, ConversationID: conversationID, Prompt: prompt})
	return h.nextID, nil
}

func (h *memHistory) CompleteTurn(_ context.Context, turnID int64, response string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.turns {
		if h.turns[i].ID == turnID {
			h.turns[i].Response = response
			h.completes++
			return nil
		}
	}
	return errors.New("turn not found")
}

func (h *memHistory) snapshot() ([]Turn, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...), h.completes
}

func (h *memHistory) priorCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.priorCalls
}

// pieceBackend streams fixed pieces and then returns err.
type pieceBackend struct {
	pieces  []string
	err     error
	emitted atomic.Int32
	lastReq llm.ChatRequest
}

func (b *pieceBackend) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	b.lastReq = req
	var text string
	for _, p := range b.pieces {
		text += p
	}
	return &llm.ChatResponse{Content: text}, b.err
}

func (b *pieceBackend) ChatStream(_ context.Context, req llm.ChatRequest, onPiece func(string) bool) error {
	b.lastReq = req
	for _, p := range b.pieces {
		b.emitted.Add(1)
		if !onPiece(p) {
			return nil
		}
	}
	return b.err
}

func (b *pieceBackend) ModelInfo() llm.ModelMeta { return llm.ModelMeta{ID: "stub", Provider: "stub"} }

// plainBackend cannot stream.
type plainBackend struct {
	reply   string
	lastReq llm.ChatRequest
}

func (b *plainBackend) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	b.lastReq = req
	return &llm.ChatResponse{Content: b.reply}, nil
}

func (b *plainBackend) ModelInfo() llm.ModelMeta { return llm.ModelMeta{ID: "plain", Provider: "stub"} }

func loaderFor(b llm.Backend) Loader {
	return func(context.Context, string) (llm.Backend, error) { return b, nil }
}

// fakeConn feeds queued prompts, then blocks until ctx is done. Sends fail
// from the failOn-th call onwards when failOn > 0.
type fakeConn struct {
	prompts chan string
	failOn  int

	mu    sync.Mutex
	sends int
	sent  []string
}

func newFakeConn(failOn int, prompts ...string) *fakeConn {
	ch := make(chan string, len(prompts))
	for _, p := range prompts {
		ch <- p
	}
	return &fakeConn{prompts: ch, failOn: failOn}
}

func (c *fakeConn) ReadPrompt(ctx context.Context) (string, error) {
	select {
	case p := <-c.prompts:
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	if c.failOn > 0 && c.sends >= c.failOn {
		return errors.New("connection reset")
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func ptr[T any](v T) *T { return &v }
