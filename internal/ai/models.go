package ai

import (
	"fmt"
	"sort"
	"strings"
)

// ModelInfo is approximate metadata used for prompt-size warnings.
type ModelInfo struct {
	Name          string
	ContextTokens int
}

var models = map[string]ModelInfo{
	"gemini-2.0-flash-lite":             {Name: "gemini-2.0-flash-lite", ContextTokens: 1048576},
	"gemini-2.0-flash":                  {Name: "gemini-2.0-flash", ContextTokens: 1048576},
	"gemini-1.5-flash":                  {Name: "gemini-1.5-flash", ContextTokens: 1000000},
	"gemini-1.5-pro":                    {Name: "gemini-1.5-pro", ContextTokens: 2000000},
	"google/gemini-2.0-flash-001":       {Name: "google/gemini-2.0-flash-001", ContextTokens: 1048576},
	"openai/gpt-4o-mini":                {Name: "openai/gpt-4o-mini", ContextTokens: 128000},
	"openai/gpt-4o":                     {Name: "openai/gpt-4o", ContextTokens: 128000},
	"anthropic/claude-3.5-sonnet":       {Name: "anthropic/claude-3.5-sonnet", ContextTokens: 200000},
	"meta-llama/llama-3.1-8b-instruct":  {Name: "meta-llama/llama-3.1-8b-instruct", ContextTokens: 131072},
	"meta-llama/llama-3.1-70b-instruct": {Name: "meta-llama/llama-3.1-70b-instruct", ContextTokens: 131072},
	"llama3:latest":                     {Name: "llama3:latest", ContextTokens: 8192},
	"llama3.1:8b":                       {Name: "llama3.1:8b", ContextTokens: 131072},
	"mistral:7b-instruct":               {Name: "mistral:7b-instruct", ContextTokens: 8192},
	"phi3:mini-4k-instruct":             {Name: "phi3:mini-4k-instruct", ContextTokens: 4096},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// ContextWarning returns a message when promptTokens plus the reserved
// completion budget exceeds the model's known context window. Unknown
// models produce no warning.
func ContextWarning(model string, promptTokens, maxTokens int) string {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= 0 {
		return ""
	}
	if promptTokens+maxTokens <= mi.ContextTokens {
		return ""
	}
	return fmt.Sprintf("prompt is ~%d tokens (+%d for the answer) but %s accepts about %d; the provider may reject it",
		promptTokens, maxTokens, model, mi.ContextTokens)
}

// DefaultModel is the model used when neither a flag nor the config names one.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOllama:
		return "llama3.1:8b"
	case ProviderGemini:
		return DefaultGeminiModel
	default:
		return "openai/gpt-4o-mini"
	}
}

// Models returns the known models sorted by name.
func Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, mi := range models {
		out = append(out, mi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProviderOf guesses which provider serves a catalog model.
func ProviderOf(name string) string {
	switch {
	case strings.Contains(name, ":"):
		return ProviderOllama
	case strings.HasPrefix(name, "gemini-"):
		return ProviderGemini
	default:
		return ProviderOpenRouter
	}
}
