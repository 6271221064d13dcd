package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tablechat-cli/internal/dictionary"
	"github.com/KaramelBytes/tablechat-cli/internal/parser"
	"github.com/KaramelBytes/tablechat-cli/internal/prompt"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

var dictDataset string

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary <file>",
	Short: "Show how a data dictionary is read and matched to a dataset",
	Example: `  tablechat dictionary dict.xlsx
  tablechat dictionary dict.csv --dataset sales.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := parser.LoadFile(args[0])
		if err != nil {
			return err
		}
		d, roles := doc.Compile()
		if doc.Structured() {
			fmt.Printf("Dictionary: %s (%d rows)\n", doc.Name, doc.Table.Rows())
			for _, role := range []dictionary.Role{dictionary.RoleName, dictionary.RoleType, dictionary.RoleDescription} {
				if idx, ok := roles.Column(role); ok {
					fmt.Printf("✓ %-11s column %q\n", role.String()+":", doc.Table.Headers[idx])
				} else {
					fmt.Printf("⚠ %-11s not found\n", role.String()+":")
				}
			}
			fmt.Printf("\nFields (%d):\n", d.Len())
		} else {
			fmt.Printf("Dictionary: %s (free text, passed to the model verbatim)\n\n", doc.Name)
		}
		fmt.Println(d.Text())

		if dictDataset == "" {
			return nil
		}
		ds, err := table.LoadFile(dictDataset)
		if err != nil {
			return err
		}
		rec := dictionary.Reconcile(ds.ColumnNames(), d)
		fmt.Printf("\nColumns of %s: %d exact, %d fuzzy, %d unmatched\n",
			ds.Name, rec.Count(dictionary.MatchExact), rec.Count(dictionary.MatchFuzzy), rec.Count(dictionary.MatchNone))
		fmt.Println(strings.TrimRight(prompt.RenderColumns(rec), "\n"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dictionaryCmd)
	dictionaryCmd.Flags().StringVar(&dictDataset, "dataset", "", "dataset to reconcile the dictionary against")
}
