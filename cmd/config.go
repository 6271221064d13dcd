package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/tablechat-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set tablechat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("api_key: %s\n", mask(cfg.APIKey))
		fmt.Printf("gemini_api_key: %s\n", mask(cfg.GeminiAPIKey))
		fmt.Printf("default_provider: %s\n", cfg.DefaultProvider)
		if cfg.DefaultModel != "" {
			fmt.Printf("default_model: %s\n", cfg.DefaultModel)
		}
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		fmt.Printf("http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Printf("retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Printf("retry_base_delay_ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Printf("retry_max_delay_ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Printf("ollama_host: %s\n", cfg.OllamaHost)
		fmt.Printf("ollama_timeout_sec: %d\n", cfg.OllamaTimeoutSec)
		fmt.Printf("sessions_dir: %s\n", cfg.SessionsDir)
		fmt.Printf("session_backend: %s\n", cfg.SessionBackend)
		if cfg.SessionDSN != "" {
			fmt.Printf("session_dsn: %s\n", maskDSN(cfg.SessionDSN))
		}
		fmt.Printf("history_turns: %d\n", cfg.HistoryTurns)
		fmt.Printf("prompt_strategy: %s\n", cfg.PromptStrategy)
		fmt.Printf("sample_rows: %d\n", cfg.SampleRows)
		fmt.Printf("correlations: %t\n", cfg.Correlations)
		fmt.Printf("server_addr: %s\n", cfg.ServerAddr)
		fmt.Printf("cors_origins: %s\n", strings.Join(cfg.CORSOrigins, ","))
		fmt.Printf("max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long:  "Set a config value and save to disk. Keys: " + strings.Join(cfgpkg.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Printf("✓ Saved %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}

// maskDSN hides the password of a postgres connection string.
func maskDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "password=") {
			return "(set, key=value form)"
		}
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "(set)"
	}
	return u.Redacted()
}
