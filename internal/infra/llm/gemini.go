package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API through the genai SDK. The client
// is built per Generate call because the credential can change between
// requests.
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGeminiProvider(baseURL, apiKey string, client *http.Client) *GeminiProvider {
	return &GeminiProvider{baseURL: baseURL, apiKey: apiKey, httpClient: client}
}

func (p *GeminiProvider) Name() string { return "google" }

func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*Completion, error) {
	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return nil, p.mapError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, &LogicalError{Provider: p.Name(), Message: "no text returned"}
	}
	return &Completion{Text: text}, nil
}

func (p *GeminiProvider) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Provider: p.Name(), StatusCode: apiErr.Code, Body: excerpt([]byte(apiErr.Message))}
	}
	return &TransportError{Provider: p.Name(), Err: err}
}
