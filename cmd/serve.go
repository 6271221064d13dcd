package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	"github.com/KaramelBytes/tablechat-cli/internal/pipeline"
	"github.com/KaramelBytes/tablechat-cli/internal/server"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

var (
	serveAddr     string
	serveProvider string
	serveModel    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Example: `  tablechat serve
  tablechat serve --addr 0.0.0.0:8080 --provider gemini`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		log := newLogger()
		defer func() { _ = log.Sync() }()

		store, err := openStore(log)
		if err != nil {
			return err
		}
		defer store.Close()

		provider, err := resolveProvider(c, serveProvider)
		if err != nil {
			return err
		}
		model := selectModel(c, provider, serveModel)
		rt, _, err := buildRuntime(c, runtimeOptions{ProviderFlag: provider})
		if err != nil {
			return err
		}
		maxTokens := c.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		opts := pipeline.DefaultOptions()
		if cfg != nil {
			opts.SampleRows = cfg.SampleRows
			opts.Profile.Correlations = cfg.Correlations
		}
		p := &pipeline.Pipeline{
			Completer:    ai.NewCompleter(rt, provider, model, maxTokens, c.Temperature),
			Options:      opts,
			Provider:     provider,
			Model:        model,
			MaxTokens:    maxTokens,
			HistoryTurns: c.HistoryTurns,
		}

		addr := serveAddr
		if addr == "" {
			addr = c.ServerAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		askTimeout := 3 * time.Minute
		if c.HTTPTimeoutSec > 0 {
			// retries happen inside one question
			askTimeout = time.Duration(c.HTTPTimeoutSec*(c.RetryMaxAttempts+1)) * time.Second
		}
		srv := server.New(server.Config{
			Addr:        addr,
			CORSOrigins: c.CORSOrigins,
			UploadDir:   filepath.Join(utils.ExpandHome(c.SessionsDir), "uploads"),
			MaxUploadMB: c.MaxUploadMB,
			AskTimeout:  askTimeout,
		}, store, p, log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		fmt.Printf("✓ Serving on http://%s (provider=%s model=%s)\n", addr, provider, model)
		log.Info("server starting", zap.String("addr", addr), zap.String("provider", provider), zap.String("model", model))
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server_addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "completion provider: openrouter|ollama|gemini")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "model name (default from config or provider)")
}
