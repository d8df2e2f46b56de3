package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls the Chat Completions API with the full prompt as a
// single user message.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{Provider: p.Name(), StatusCode: apiErr.StatusCode, Body: excerpt([]byte(apiErr.RawJSON()))}
		}
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &LogicalError{Provider: p.Name(), Message: "no choices returned"}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, &LogicalError{Provider: p.Name(), Message: "no text returned"}
	}
	return &Completion{Text: text}, nil
}
