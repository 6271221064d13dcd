package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tablechat-cli/internal/normalize"
	"github.com/KaramelBytes/tablechat-cli/internal/pipeline"
)

var (
	profDictionary string
	profFormat     string
	profNoCorr     bool
	profOutput     string
)

var profileCmd = &cobra.Command{
	Use:   "profile <dataset>",
	Short: "Print the statistical profile sent to the model",
	Example: `  tablechat profile sales.csv
  tablechat profile sales.xlsx --format markdown
  tablechat profile sales.csv --dictionary dict.csv --output profile.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := pipeline.DefaultOptions()
		if cfg != nil {
			opts.Profile.Correlations = cfg.Correlations
		}
		if profNoCorr {
			opts.Profile.Correlations = false
		}
		log := newLogger()
		defer func() { _ = log.Sync() }()
		a, err := pipeline.Analyze(args[0], profDictionary, opts, log)
		if err != nil {
			return err
		}

		var out []byte
		switch profFormat {
		case "", "json":
			doc := normalize.NewOrderedMap()
			doc.Set("profile", a.Profile)
			if profDictionary != "" {
				doc.Set("reconciliation", a.Reconciliation)
			}
			b, err := normalize.JSON(doc)
			if err != nil {
				return err
			}
			out = b
		case "markdown", "md":
			out = []byte(a.Profile.Markdown())
		default:
			return fmt.Errorf("unsupported --format: %s (use json|markdown)", profFormat)
		}

		for _, w := range a.Warnings {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", w)
		}
		if profOutput != "" {
			if err := os.WriteFile(profOutput, out, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote %s profile to %s\n", profFormat, profOutput)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVar(&profDictionary, "dictionary", "", "optional data dictionary to reconcile against")
	profileCmd.Flags().StringVar(&profFormat, "format", "json", "output format: json|markdown")
	profileCmd.Flags().BoolVar(&profNoCorr, "no-correlations", false, "skip the correlation matrix")
	profileCmd.Flags().StringVar(&profOutput, "output", "", "write the profile to a file instead of stdout")
}
