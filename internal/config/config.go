package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. TABLECHAT_DEFAULT_MODEL.
const EnvPrefix = "TABLECHAT"

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Sessions
	SessionsDir    string `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	SessionBackend string `mapstructure:"session_backend" yaml:"session_backend"`
	SessionDSN     string `mapstructure:"session_dsn" yaml:"session_dsn"`
	HistoryTurns   int    `mapstructure:"history_turns" yaml:"history_turns"`

	// Prompt and profile
	PromptStrategy string `mapstructure:"prompt_strategy" yaml:"prompt_strategy"`
	SampleRows     int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	Correlations   bool   `mapstructure:"correlations" yaml:"correlations"`

	// HTTP API
	ServerAddr  string   `mapstructure:"server_addr" yaml:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxUploadMB int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

var defaults = map[string]any{
	"api_key":             "",
	"gemini_api_key":      "",
	"default_provider":    "openrouter",
	"default_model":       "",
	"max_tokens":          1024,
	"temperature":         0.2,
	"http_timeout_sec":    60,
	"retry_max_attempts":  3,
	"retry_base_delay_ms": 500,
	"retry_max_delay_ms":  4000,
	"ollama_host":         "http://127.0.0.1:11434",
	"ollama_timeout_sec":  120,
	"sessions_dir":        "",
	"session_backend":     "file",
	"session_dsn":         "",
	"history_turns":       4,
	"prompt_strategy":     "profile",
	"sample_rows":         5,
	"correlations":        true,
	"server_addr":         "127.0.0.1:8080",
	"cors_origins":        []string{"*"},
	"max_upload_mb":       32,
	"log_level":           "info",
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dir returns ~/.tablechat.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tablechat"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tablechat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file (cfgFile or ~/.tablechat/config.yaml) > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.SessionsDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.SessionsDir = filepath.Join(dir, "sessions")
	}
	return &c, nil
}

// Set assigns a single key from its string form, validating enumerations
// and numeric ranges.
func (c *Global) Set(key, val string) error {
	val = strings.TrimSpace(val)
	switch key {
	case "api_key":
		c.APIKey = val
	case "gemini_api_key":
		c.GeminiAPIKey = val
	case "default_provider":
		p, err := NormalizeProvider(val)
		if err != nil {
			return err
		}
		c.DefaultProvider = p
	case "default_model":
		c.DefaultModel = val
	case "max_tokens":
		return setInt(&c.MaxTokens, key, val, 1)
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %q (use 0..2)", val)
		}
		c.Temperature = f
	case "http_timeout_sec":
		return setInt(&c.HTTPTimeoutSec, key, val, 1)
	case "retry_max_attempts":
		return setInt(&c.RetryMaxAttempts, key, val, 1)
	case "retry_base_delay_ms":
		return setInt(&c.RetryBaseDelayMs, key, val, 0)
	case "retry_max_delay_ms":
		return setInt(&c.RetryMaxDelayMs, key, val, 0)
	case "ollama_host":
		c.OllamaHost = val
	case "ollama_timeout_sec":
		return setInt(&c.OllamaTimeoutSec, key, val, 1)
	case "sessions_dir":
		c.SessionsDir = val
	case "session_backend":
		switch strings.ToLower(val) {
		case "file", "sqlite", "postgres":
			c.SessionBackend = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid session_backend: %s (use file, sqlite or postgres)", val)
		}
	case "session_dsn":
		c.SessionDSN = val
	case "history_turns":
		return setInt(&c.HistoryTurns, key, val, 0)
	case "prompt_strategy":
		switch strings.ToLower(val) {
		case "profile", "sample", "persona":
			c.PromptStrategy = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid prompt_strategy: %s (use profile, sample or persona)", val)
		}
	case "sample_rows":
		return setInt(&c.SampleRows, key, val, 0)
	case "correlations":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for correlations: %q", val)
		}
		c.Correlations = b
	case "server_addr":
		c.ServerAddr = val
	case "cors_origins":
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	case "max_upload_mb":
		return setInt(&c.MaxUploadMB, key, val, 1)
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// NormalizeProvider maps provider aliases onto openrouter, ollama or gemini.
func NormalizeProvider(val string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "openrouter":
		return "openrouter", nil
	case "ollama", "local":
		return "ollama", nil
	case "gemini", "google":
		return "gemini", nil
	default:
		return "", fmt.Errorf("invalid provider: %s (use openrouter, ollama or gemini)", val)
	}
}

func setInt(dst *int, key, val string, floor int) error {
	i, err := strconv.Atoi(val)
	if err != nil || i < floor {
		return fmt.Errorf("invalid int for %s: %q (minimum %d)", key, val, floor)
	}
	*dst = i
	return nil
}
