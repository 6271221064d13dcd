package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/parser"
	"github.com/KaramelBytes/tablechat-cli/internal/prompt"
	"github.com/KaramelBytes/tablechat-cli/internal/session"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

var (
	sessNewName       string
	sessNewDataset    string
	sessNewDictionary string
	sessNewStrategy   string
	sessShowTurns     int
	sessClearDelete   bool
)

func openStore(log *zap.Logger) (session.Store, error) {
	c := currentConfig()
	if strings.EqualFold(c.SessionBackend, session.BackendPostgres) {
		return session.Open(c.SessionBackend, c.SessionDSN, log)
	}
	dir := utils.ExpandHome(c.SessionsDir)
	if dir == "" {
		return nil, fmt.Errorf("sessions_dir is not configured")
	}
	return session.Open(c.SessionBackend, dir, log)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions (dataset, dictionary and history)",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session bound to a dataset and an optional dictionary",
	Example: `  tablechat session new --dataset sales.csv --dictionary dict.xlsx --name q3
  tablechat session new --dataset orders.tsv --strategy sample`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessNewDataset == "" {
			return fmt.Errorf("--dataset is required")
		}
		if _, err := prompt.ParseStrategy(sessNewStrategy); err != nil {
			return err
		}
		datasetPath, err := filepath.Abs(sessNewDataset)
		if err != nil {
			return err
		}
		ds, err := table.LoadFile(datasetPath)
		if err != nil {
			return err
		}
		var dictPath string
		if sessNewDictionary != "" {
			if dictPath, err = filepath.Abs(sessNewDictionary); err != nil {
				return err
			}
			if _, err := parser.LoadFile(dictPath); err != nil {
				return err
			}
		}

		log := newLogger()
		defer func() { _ = log.Sync() }()
		store, err := openStore(log)
		if err != nil {
			return err
		}
		defer store.Close()

		s := session.New(sessNewName, datasetPath, dictPath)
		s.Strategy = strings.ToLower(strings.TrimSpace(sessNewStrategy))
		if err := store.Save(cmd.Context(), s); err != nil {
			return err
		}
		fmt.Printf("✓ Created session %s (%s)\n", s.ID, s.Name)
		fmt.Printf("  dataset: %s (%d rows, %d columns)\n", filepath.Base(datasetPath), ds.Rows, len(ds.Columns))
		if dictPath != "" {
			fmt.Printf("  dictionary: %s\n", filepath.Base(dictPath))
		}
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(newLogger())
		if err != nil {
			return err
		}
		defer store.Close()
		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("(no sessions)")
			return nil
		}
		for _, s := range list {
			fmt.Printf("- %s  %-16s  %-24s  %d turn(s)  updated %s\n",
				s.ID, s.Name, filepath.Base(s.DatasetPath), len(s.History), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its recent history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(newLogger())
		if err != nil {
			return err
		}
		defer store.Close()
		s, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		fmt.Printf("Session: %s (%s)\n", s.ID, s.Name)
		fmt.Printf("Dataset: %s\n", s.DatasetPath)
		if s.DictionaryPath != "" {
			fmt.Printf("Dictionary: %s\n", s.DictionaryPath)
		}
		if s.Strategy != "" {
			fmt.Printf("Strategy: %s\n", s.Strategy)
		}
		fmt.Printf("Created: %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		turns := s.Recent(sessShowTurns)
		if len(turns) == 0 {
			fmt.Println("(no questions yet)")
			return nil
		}
		fmt.Printf("\nLast %d of %d turn(s):\n", len(turns), len(s.History))
		for _, t := range turns {
			fmt.Printf("\nQ: %s\nA: %s\n", t.Question, t.Answer)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Clear a session's history (or delete the session with --delete)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(newLogger())
		if err != nil {
			return err
		}
		defer store.Close()
		if sessClearDelete {
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			fmt.Printf("✓ Deleted session %s\n", args[0])
			return nil
		}
		s, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		n := len(s.History)
		s.History = nil
		if err := store.Save(cmd.Context(), s); err != nil {
			return err
		}
		fmt.Printf("✓ Cleared %d turn(s) from session %s\n", n, s.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionNewCmd, sessionListCmd, sessionShowCmd, sessionClearCmd)
	sessionNewCmd.Flags().StringVar(&sessNewName, "name", "", "session name (default: short id)")
	sessionNewCmd.Flags().StringVar(&sessNewDataset, "dataset", "", "dataset file (.csv, .tsv, .xlsx)")
	sessionNewCmd.Flags().StringVar(&sessNewDictionary, "dictionary", "", "data dictionary (.csv, .tsv, .xlsx, .html, .txt, .md, .docx)")
	sessionNewCmd.Flags().StringVar(&sessNewStrategy, "strategy", "", "default prompt strategy: profile|sample|persona")
	sessionShowCmd.Flags().IntVar(&sessShowTurns, "turns", 5, "number of recent turns to show")
	sessionClearCmd.Flags().BoolVar(&sessClearDelete, "delete", false, "delete the session instead of clearing its history")
}
