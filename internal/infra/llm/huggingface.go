package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultHuggingFaceBaseURL is the hosted inference endpoint.
const DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"

// HuggingFaceProvider calls the hosted inference API:
// POST {baseURL}/models/{model} with a bearer credential.
type HuggingFaceProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHuggingFaceProvider(baseURL, apiKey string, client *http.Client) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HuggingFaceProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: client}
}

func (p *HuggingFaceProvider) Name() string { return "huggingface" }

type hfParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// Generate sends one inference request. The response body is classified by
// parseHFResponse; an unrecognized but valid JSON body comes back as a
// Completion with Unrecognized set and the raw body as text.
func (p *HuggingFaceProvider) Generate(ctx context.Context, req GenerateRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	payload, err := json.Marshal(hfRequest{
		Inputs:     req.Prompt,
		Parameters: hfParameters{MaxNewTokens: maxTokens, Temperature: req.Temperature},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/models/"+req.Model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: excerpt(body)}
	}

	parsed, err := parseHFResponse(body)
	if err != nil {
		return nil, err
	}
	switch parsed.kind {
	case hfGenerated:
		text := strings.TrimPrefix(parsed.text, req.Prompt)
		return &Completion{Text: strings.TrimSpace(text)}, nil
	case hfErrorField:
		return nil, &LogicalError{Provider: p.Name(), Message: parsed.text}
	default:
		return &Completion{Text: string(body), Unrecognized: true}, nil
	}
}

type hfShape int

const (
	hfUnrecognized hfShape = iota
	hfGenerated
	hfErrorField
)

type hfResponse struct {
	kind hfShape
	text string
}

type hfObject struct {
	GeneratedText *string         `json:"generated_text"`
	Error         json.RawMessage `json:"error"`
}

// parseHFResponse classifies a 2xx body. Accepted shapes:
//
//	[{"generated_text": "..."}, ...]   first element wins
//	{"generated_text": "..."}
//	{"error": "..."}                   logical failure
//
// Anything else that is valid JSON is hfUnrecognized. Invalid JSON is
// ErrResponseParse.
func parseHFResponse(body []byte) (hfResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return hfResponse{}, fmt.Errorf("huggingface: %w", ErrResponseParse)
	}

	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil || len(list) == 0 {
			return hfResponse{kind: hfUnrecognized}, nil
		}
		var first hfObject
		if err := json.Unmarshal(list[0], &first); err != nil || first.GeneratedText == nil {
			return hfResponse{kind: hfUnrecognized}, nil
		}
		return hfResponse{kind: hfGenerated, text: *first.GeneratedText}, nil

	case len(trimmed) > 0 && trimmed[0] == '{':
		var obj hfObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return hfResponse{kind: hfUnrecognized}, nil
		}
		if obj.GeneratedText != nil {
			return hfResponse{kind: hfGenerated, text: *obj.GeneratedText}, nil
		}
		if len(obj.Error) > 0 && string(obj.Error) != "null" {
			return hfResponse{kind: hfErrorField, text: errorFieldText(obj.Error)}, nil
		}
	}
	return hfResponse{kind: hfUnrecognized}, nil
}

func errorFieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
