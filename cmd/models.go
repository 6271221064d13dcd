package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
)

var modelsProvider string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models with known context windows",
	Long: `List the models tablechat knows the context window of. Prompts larger
than a model's window produce a warning before the question is sent. Other
model names still work; they just skip the check.`,
	Example: `  tablechat models
  tablechat models --provider ollama`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := ""
		if modelsProvider != "" {
			p, err := resolveProvider(currentConfig(), modelsProvider)
			if err != nil {
				return err
			}
			filter = p
		}
		c := currentConfig()
		defaults := map[string]bool{}
		for _, p := range []string{ai.ProviderOpenRouter, ai.ProviderOllama, ai.ProviderGemini} {
			defaults[selectModel(c, p, "")] = true
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\t")
		for _, mi := range ai.Models() {
			p := ai.ProviderOf(mi.Name)
			if filter != "" && p != filter {
				continue
			}
			mark := ""
			if defaults[mi.Name] {
				mark = "(default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p, mi.Name, mi.ContextTokens, mark)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "only list models for this provider")
}
