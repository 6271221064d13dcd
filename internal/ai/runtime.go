package ai

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Runtime is implemented by every completion backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime is an optional extension for backends that can stream.
// onDelta receives each partial content chunk.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// Provider identifiers accepted by --provider and default_provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// RuntimeConfig carries the knobs shared by all runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// APIKey is the OpenRouter or Gemini key, depending on the provider.
	APIKey string
	// Host is the Ollama base URL.
	Host string
	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string
}

// RuntimeFactory builds a Runtime from a RuntimeConfig.
type RuntimeFactory func(RuntimeConfig) Runtime

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// NewRuntime creates the Runtime for a registered provider.
func NewRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", name, Providers())
	}
	return f(cfg), nil
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) Runtime {
		cl := NewOpenRouterClient(c.APIKey, c.HTTPTimeout, newRetryPolicy(c.RetryMax, c.BaseDelay, c.MaxDelay, 3, 500*time.Millisecond, 4*time.Second))
		if c.BaseURL != "" {
			cl.baseURL = c.BaseURL
		}
		return cl
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		return NewOllamaClient(c.Host, c.HTTPTimeout, newRetryPolicy(c.RetryMax, c.BaseDelay, c.MaxDelay, 2, 200*time.Millisecond, time.Second))
	})
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) Runtime {
		return NewGeminiClient(c.APIKey, c.BaseURL, c.HTTPTimeout, newRetryPolicy(c.RetryMax, c.BaseDelay, c.MaxDelay, 3, 500*time.Millisecond, 4*time.Second))
	})
}
