package llm

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// ProviderFactory builds a RemoteProvider for one request from the current
// credential.
type ProviderFactory func(credential string) RemoteProvider

// Registry maps configured provider names to factories. Names are matched
// case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates a Registry with an initial set of factories.
func NewRegistry(factories map[string]ProviderFactory) *Registry {
	fs := make(map[string]ProviderFactory, len(factories))
	for k, v := range factories {
		fs[strings.ToLower(k)] = v
	}
	return &Registry{factories: fs}
}

// Register adds (or replaces) a factory under the given name.
func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Resolve builds the provider registered under name.
func (r *Registry) Resolve(name, credential string) (RemoteProvider, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm registry: provider %q (available: %v): %w", name, r.keys(), ErrUnknownProvider)
	}
	return f(credential), nil
}

// keys returns the registered provider names (for error messages).
func (r *Registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RemoteOptions configures the built-in remote providers. Empty base URLs
// mean each SDK's default endpoint.
type RemoteOptions struct {
	HuggingFaceBaseURL string
	GeminiBaseURL      string
	OpenAIBaseURL      string
	AnthropicBaseURL   string
	HTTPClient         *http.Client
}

// DefaultRegistry registers huggingface, google, openai and anthropic.
func DefaultRegistry(opts RemoteOptions) *Registry {
	return NewRegistry(map[string]ProviderFactory{
		"huggingface": func(key string) RemoteProvider {
			return NewHuggingFaceProvider(opts.HuggingFaceBaseURL, key, opts.HTTPClient)
		},
		"google": func(key string) RemoteProvider {
			return NewGeminiProvider(opts.GeminiBaseURL, key, opts.HTTPClient)
		},
		"openai": func(key string) RemoteProvider {
			return NewOpenAIProvider(opts.OpenAIBaseURL, key, opts.HTTPClient)
		},
		"anthropic": func(key string) RemoteProvider {
			return NewAnthropicProvider(opts.AnthropicBaseURL, key, opts.HTTPClient)
		},
	})
}
