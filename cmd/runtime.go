package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/tablechat-cli/internal/config"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// resolveProvider applies flag > config > openrouter and folds aliases.
func resolveProvider(cfg *cfgpkg.Global, flag string) (string, error) {
	name := strings.TrimSpace(flag)
	if name == "" && cfg != nil {
		name = cfg.DefaultProvider
	}
	if name == "" {
		return ai.ProviderOpenRouter, nil
	}
	return cfgpkg.NormalizeProvider(name)
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName, err := resolveProvider(cfg, opts.ProviderFlag)
	if err != nil {
		return nil, "", err
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
	switch providerName {
	case ai.ProviderOpenRouter:
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.APIKey
		}
	case ai.ProviderGemini:
		for _, env := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if rc.APIKey = os.Getenv(env); rc.APIKey != "" {
				break
			}
		}
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.GeminiAPIKey
		}
	case ai.ProviderOllama:
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, err := ai.NewRuntime(providerName, rc)
	if err != nil {
		return nil, providerName, err
	}
	return client, providerName, nil
}

// selectModel picks flag > config (when it belongs to the same provider) >
// the provider default.
func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		cfgProvider, err := resolveProvider(cfg, "")
		if err == nil && cfgProvider == provider {
			return cfg.DefaultModel
		}
	}
	return ai.DefaultModel(provider)
}

// describeServiceError adds provider-specific hints to a completion failure.
func describeServiceError(err error, provider, model string) error {
	var (
		authErr *ai.AuthError
		nfErr   *ai.ModelNotFoundError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &unreach) && provider == ai.ProviderOllama:
		return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running (see https://ollama.com) and the host is correct; set TABLECHAT_OLLAMA_HOST or config 'ollama_host': %w", unreach.Host, err)
	case errors.As(err, &authErr) && provider == ai.ProviderGemini:
		return fmt.Errorf("authentication failed: set GEMINI_API_KEY or gemini_api_key in ~/.tablechat/config.yaml: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set OPENROUTER_API_KEY or api_key in ~/.tablechat/config.yaml: %w", err)
	case errors.As(err, &nfErr) && provider == ai.ProviderOllama:
		return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
	default:
		if hint := ai.Describe(err); hint != "" {
			return fmt.Errorf("%s\n  %w", hint, err)
		}
		return err
	}
}

type outputOptions struct {
	JSON         bool
	Quiet        bool
	Session      string
	Provider     string
	Model        string
	PromptTokens int
	OutputPath   string
	OutputFormat string
	Writer       io.Writer
}

func formatAndWriteOutput(content string, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	record := map[string]any{
		"session":       opts.Session,
		"provider":      opts.Provider,
		"model":         opts.Model,
		"prompt_tokens": opts.PromptTokens,
		"answer":        content,
	}

	switch {
	case opts.JSON:
		b, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(w, string(b))
	case opts.Quiet:
		fmt.Fprintln(w, content)
	default:
		fmt.Fprintln(w, "\n=== Answer ===")
		fmt.Fprintln(w, content)
	}

	if opts.OutputPath == "" {
		return nil
	}
	var data []byte
	switch opts.OutputFormat {
	case "", "text", "markdown", "md":
		data = []byte(content)
	case "json":
		b, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		data = b
	default:
		return fmt.Errorf("unsupported --format: %s (use text|markdown|json)", opts.OutputFormat)
	}
	if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.Quiet {
		fmt.Fprintf(w, "\n💾 Saved answer to %s\n", opts.OutputPath)
	}
	return nil
}
