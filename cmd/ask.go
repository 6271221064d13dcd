package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	"github.com/KaramelBytes/tablechat-cli/internal/pipeline"
	"github.com/KaramelBytes/tablechat-cli/internal/prompt"
	"github.com/KaramelBytes/tablechat-cli/internal/session"
)

var (
	askDataset      string
	askDictionary   string
	askSessionID    string
	askSave         bool
	askStrategy     string
	askSampleRows   int
	askNoCorr       bool
	askProvider     string
	askModel        string
	askMaxTokens    int
	askTemp         float64
	askDryRun       bool
	askStream       bool
	askQuiet        bool
	askJSON         bool
	askOutputPath   string
	askOutputFmt    string
	askOllamaHost   string
	askTimeoutSec   int
	askHistoryTurns int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about a dataset",
	Example: `  tablechat ask "Which region had the highest revenue in March?" --dataset sales.csv --dictionary dict.csv
  tablechat ask "And in April?" --session 3f0c1a7e-...
  tablechat ask "How many orders per month?" --dataset orders.xlsx --strategy sample --dry-run
  tablechat ask "Summarize sales" --dataset sales.csv --provider ollama --model llama3.1:8b --stream`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		c := currentConfig()
		f := cmd.Flags()
		if askJSON {
			askQuiet = true
		}

		log := newLogger()
		defer func() { _ = log.Sync() }()

		var (
			store session.Store
			sess  *session.Session
		)
		switch {
		case askSessionID != "" && askDataset != "":
			return fmt.Errorf("use either --session or --dataset, not both")
		case askSessionID != "":
			st, err := openStore(log)
			if err != nil {
				return err
			}
			defer st.Close()
			store = st
			sess, err = st.Load(cmd.Context(), askSessionID)
			if err != nil {
				return fmt.Errorf("session %s: %w", askSessionID, err)
			}
		case askDataset != "":
			datasetPath, err := filepath.Abs(askDataset)
			if err != nil {
				return err
			}
			dictPath := ""
			if askDictionary != "" {
				if dictPath, err = filepath.Abs(askDictionary); err != nil {
					return err
				}
			}
			sess = session.New("", datasetPath, dictPath)
			if askSave {
				st, err := openStore(log)
				if err != nil {
					return err
				}
				defer st.Close()
				store = st
			}
		default:
			return fmt.Errorf("--dataset or --session is required")
		}

		var strategy prompt.Strategy
		switch {
		case f.Changed("strategy"):
			s, err := prompt.ParseStrategy(askStrategy)
			if err != nil {
				return err
			}
			strategy = s
		case sess.Strategy == "" && c.PromptStrategy != "":
			s, err := prompt.ParseStrategy(c.PromptStrategy)
			if err != nil {
				return err
			}
			strategy = s
		}

		opts := pipeline.DefaultOptions()
		if cfg != nil {
			opts.SampleRows = cfg.SampleRows
			opts.Profile.Correlations = cfg.Correlations
		}
		if f.Changed("sample-rows") {
			if askSampleRows < 0 {
				return fmt.Errorf("--sample-rows must be >= 0")
			}
			opts.SampleRows = askSampleRows
		}
		if askNoCorr {
			opts.Profile.Correlations = false
		}

		provider, err := resolveProvider(c, askProvider)
		if err != nil {
			return err
		}
		model := selectModel(c, provider, askModel)
		maxTokens := askMaxTokens
		if maxTokens <= 0 {
			maxTokens = c.MaxTokens
		}
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		temp := c.Temperature
		if f.Changed("temp") {
			temp = askTemp
		}
		historyTurns := c.HistoryTurns
		if f.Changed("history") {
			historyTurns = askHistoryTurns
		}

		p := &pipeline.Pipeline{
			Store:        store,
			Log:          log,
			Options:      opts,
			Provider:     provider,
			Model:        model,
			MaxTokens:    maxTokens,
			HistoryTurns: historyTurns,
		}
		if !askDryRun {
			rt, _, err := buildRuntime(c, runtimeOptions{ProviderFlag: provider, OllamaHost: askOllamaHost})
			if err != nil {
				return err
			}
			p.Completer = ai.NewCompleter(rt, provider, model, maxTokens, temp)
		}

		timeout := time.Duration(askTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		req := pipeline.Request{Question: question, Strategy: strategy, Session: sess, DryRun: askDryRun}
		streamed := false
		if askStream && !askDryRun && !askJSON {
			if !askQuiet {
				fmt.Println("(streaming)")
			}
			req.OnDelta = func(s string) { fmt.Print(s) }
			streamed = true
		}
		if !askQuiet && !askDryRun {
			fmt.Printf("⚙ Asking %s model=%s ...\n", provider, model)
		}
		ans, err := p.Ask(ctx, req)
		if ans != nil && !askQuiet {
			printPromptSummary(ans)
		}
		if err != nil {
			var se *ai.ServiceError
			if errors.As(err, &se) {
				return describeServiceError(err, provider, model)
			}
			return err
		}

		if askDryRun {
			fmt.Println("\n--dry-run: no request will be sent. Prompt preview below --")
			fmt.Println(ans.Prompt.Text)
			return nil
		}
		if streamed {
			fmt.Println()
		} else if err := formatAndWriteOutput(ans.Text, outputOptions{
			JSON:         askJSON,
			Quiet:        askQuiet,
			Session:      sessionRef(sess, store),
			Provider:     provider,
			Model:        model,
			PromptTokens: ans.Prompt.Tokens,
			OutputPath:   askOutputPath,
			OutputFormat: askOutputFmt,
			Writer:       os.Stdout,
		}); err != nil {
			return err
		}
		if store != nil && !askQuiet {
			fmt.Printf("✓ Saved to session %s (%d turn(s))\n", sess.ID, len(sess.History))
		}
		return nil
	},
}

func sessionRef(s *session.Session, store session.Store) string {
	if store == nil {
		return ""
	}
	return s.ID
}

// printPromptSummary reports the token estimate per section and any warnings.
func printPromptSummary(ans *pipeline.Answer) {
	names := make([]string, 0, len(ans.Prompt.Sections))
	for k := range ans.Prompt.Sections {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s≈%d", strings.ToLower(n), ans.Prompt.Sections[n]))
	}
	fmt.Printf("Tokens: total≈%d (%s)\n", ans.Prompt.Tokens, strings.Join(parts, ", "))
	for _, w := range ans.Warnings {
		fmt.Printf("⚠ %s\n", w)
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askDataset, "dataset", "d", "", "dataset file (.csv, .tsv, .xlsx)")
	askCmd.Flags().StringVar(&askDictionary, "dictionary", "", "data dictionary (.csv, .tsv, .xlsx, .html, .txt, .md, .docx)")
	askCmd.Flags().StringVarP(&askSessionID, "session", "s", "", "continue an existing session")
	askCmd.Flags().BoolVar(&askSave, "save", false, "save a new session for --dataset so follow-ups can use --session")
	askCmd.Flags().StringVar(&askStrategy, "strategy", "", "prompt strategy: profile|sample|persona (default from session or config)")
	askCmd.Flags().IntVar(&askSampleRows, "sample-rows", 0, "number of leading rows to include as CSV (0 disables)")
	askCmd.Flags().BoolVar(&askNoCorr, "no-correlations", false, "skip the correlation matrix")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "completion provider: openrouter|ollama|gemini")
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (default from config or provider)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max tokens for the answer")
	askCmd.Flags().Float64Var(&askTemp, "temp", 0, "sampling temperature")
	askCmd.Flags().IntVar(&askHistoryTurns, "history", 0, "number of earlier turns to include (default from config)")
	askCmd.Flags().BoolVar(&askDryRun, "dry-run", false, "print the assembled prompt without calling the provider")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer if the provider supports it")
	askCmd.Flags().BoolVar(&askQuiet, "quiet", false, "suppress non-essential output")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the answer as JSON to stdout")
	askCmd.Flags().StringVar(&askOutputPath, "output", "", "optional path to write the answer")
	askCmd.Flags().StringVar(&askOutputFmt, "format", "text", "output file format: text|markdown|json")
	askCmd.Flags().StringVar(&askOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 180, "request timeout in seconds")
}
