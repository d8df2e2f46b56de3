package generation

import (
	"context"
	"time"

	"github.com/matiasleandrokruk/chatroute/internal/infra/llm"
)

// Turn is one prompt/response pair. Response is empty while generation is in
// flight or when the prompt was never answered.
type Turn struct {
	ID             int64
	ConversationID string
	Prompt         string
	Response       string
	CreatedAt      time.Time
}

// TurnReader supplies the answered turns of a conversation, oldest first.
type TurnReader interface {
	PriorTurns(ctx context.Context, conversationID string) ([]Turn, error)
}

// HistoryProvider is the persistence boundary of the session loop.
type HistoryProvider interface {
	TurnReader
	AppendTurn(ctx context.Context, conversationID, prompt string) (int64, error)
	CompleteTurn(ctx context.Context, turnID int64, response string) error
}

// BuildMessages formats a chat request: system message first, then prior
// turns as alternating user/assistant messages, then the current prompt.
func BuildMessages(systemPrompt string, prior []Turn, prompt string) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(prior)+2)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, t := range prior {
		if t.Response == "" {
			continue
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Prompt},
			llm.Message{Role: llm.RoleAssistant, Content: t.Response},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
}

// RemotePrompt folds the system prompt into a single remote prompt string.
func RemotePrompt(systemPrompt, prompt string) string {
	if systemPrompt == "" {
		return prompt
	}
	return systemPrompt + "\n\nUser: " + prompt
}
