package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/tablechat-cli/internal/session"
)

const salesCSV = `order_date,region,revenue,qty
2024-01-05,North,120.5,3
2024-01-19,South,80,2
2024-02-02,North,200,5
2024-02-14,East,55.25,1
`

const dictCSV = `Field,Type,Description
order_date,date,Day the order was placed
Region,string,Sales region
revenue,float,Order revenue in USD
`

// resetFlags puts every flag back to its default so values do not leak
// between invocations of the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns what it printed.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := tryCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func tryCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	loadConfig()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()
	_ = w.Close()
	os.Stdout = old
	return <-done, runErr
}

// isolate points HOME at a temp dir and writes the sample dataset and
// dictionary into it.
func isolate(t *testing.T) (home, dataset, dict string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"TABLECHAT_SESSION_BACKEND", "TABLECHAT_DEFAULT_PROVIDER", "TABLECHAT_DEFAULT_MODEL"} {
		t.Setenv(k, "")
	}
	dataset = filepath.Join(home, "sales.csv")
	dict = filepath.Join(home, "dict.csv")
	if err := os.WriteFile(dataset, []byte(salesCSV), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if err := os.WriteFile(dict, []byte(dictCSV), 0o644); err != nil {
		t.Fatalf("write dictionary: %v", err)
	}
	return home, dataset, dict
}

func onlySession(t *testing.T, home string) *session.Session {
	t.Helper()
	st, err := session.Open(session.BackendFile, filepath.Join(home, ".tablechat", "sessions"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	list, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("want 1 session, got %d", len(list))
	}
	return list[0]
}

func TestCLI_SessionNew_AskDryRun(t *testing.T) {
	home, dataset, dict := isolate(t)

	out := runCmd(t, "session", "new", "--dataset", dataset, "--dictionary", dict, "--name", "q1")
	if !strings.Contains(out, "4 rows, 4 columns") {
		t.Fatalf("unexpected session new output:\n%s", out)
	}
	s := onlySession(t, home)
	if s.Name != "q1" || s.DatasetPath != dataset {
		t.Fatalf("unexpected session: %+v", s)
	}

	out = runCmd(t, "ask", "Which region sells most?", "--session", s.ID, "--dry-run")
	for _, want := range []string{"[QUESTION]", "Which region sells most?", "[DATASET COLUMNS]", "Order revenue in USD", "[DATASET PROFILE]"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry-run output missing %q", want)
		}
	}

	// dry runs never touch history
	if s := onlySession(t, home); len(s.History) != 0 {
		t.Fatalf("dry run recorded history: %+v", s.History)
	}

	out = runCmd(t, "session", "list")
	if !strings.Contains(out, s.ID) {
		t.Fatalf("session list missing %s:\n%s", s.ID, out)
	}
}

func TestCLI_AskRecordsHistory(t *testing.T) {
	home, dataset, dict := isolate(t)

	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		prompts = append(prompts, string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"North leads with 320.5"},"done":true}`)
	}))
	defer srv.Close()

	runCmd(t, "session", "new", "--dataset", dataset, "--dictionary", dict)
	s := onlySession(t, home)

	out := runCmd(t, "ask", "Which region sells most?", "--session", s.ID,
		"--provider", "ollama", "--ollama-host", srv.URL, "--model", "llama3.1:8b", "--quiet")
	if !strings.Contains(out, "North leads with 320.5") {
		t.Fatalf("answer not printed:\n%s", out)
	}
	runCmd(t, "ask", "And the least?", "--session", s.ID,
		"--provider", "ollama", "--ollama-host", srv.URL, "--model", "llama3.1:8b", "--quiet")

	s = onlySession(t, home)
	if len(s.History) != 2 || s.History[0].Provider != "ollama" {
		t.Fatalf("unexpected history: %+v", s.History)
	}
	if len(prompts) != 2 || !strings.Contains(prompts[1], "North leads with 320.5") {
		t.Fatalf("second prompt should carry the first answer: %v", prompts)
	}

	out = runCmd(t, "session", "show", s.ID)
	if !strings.Contains(out, "Q: And the least?") {
		t.Fatalf("session show missing turn:\n%s", out)
	}
	runCmd(t, "session", "clear", s.ID)
	if s := onlySession(t, home); len(s.History) != 0 {
		t.Fatalf("clear kept %d turn(s)", len(s.History))
	}
	runCmd(t, "session", "clear", s.ID, "--delete")
	if out := runCmd(t, "session", "list"); !strings.Contains(out, "(no sessions)") {
		t.Fatalf("session still listed:\n%s", out)
	}
}

func TestCLI_AskWithoutDataset(t *testing.T) {
	isolate(t)
	if _, err := tryCmd(t, "ask", "anything"); err == nil {
		t.Fatal("expected an error without --dataset or --session")
	}
}

func TestCLI_ProfileAndDictionary(t *testing.T) {
	_, dataset, dict := isolate(t)

	out := runCmd(t, "profile", dataset, "--dictionary", dict)
	for _, want := range []string{`"row_count": 4`, `"reconciliation"`, `"order_date"`} {
		if !strings.Contains(out, want) {
			t.Errorf("profile json missing %s", want)
		}
	}
	out = runCmd(t, "profile", dataset, "--format", "markdown")
	if !strings.Contains(out, "[DATASET SUMMARY]") {
		t.Errorf("markdown profile missing summary:\n%s", out)
	}

	out = runCmd(t, "dictionary", dict, "--dataset", dataset)
	for _, want := range []string{`column "Field"`, "- revenue: float. Order revenue in USD", "fuzzy", "qty"} {
		if !strings.Contains(out, want) {
			t.Errorf("dictionary output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home, _, _ := isolate(t)

	runCmd(t, "config", "set", "history_turns", "7")
	runCmd(t, "config", "set", "api_key", "sk-or-1234567890")
	if _, err := os.Stat(filepath.Join(home, ".tablechat", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "history_turns: 7") {
		t.Errorf("history_turns not persisted:\n%s", out)
	}
	if strings.Contains(out, "sk-or-1234567890") || !strings.Contains(out, "api_key: sk-****890") {
		t.Errorf("api key not masked:\n%s", out)
	}
	if _, err := tryCmd(t, "config", "set", "history_turns", "-1"); err == nil {
		t.Error("expected validation error for negative history_turns")
	}
}

func TestCLI_Models(t *testing.T) {
	isolate(t)
	out := runCmd(t, "models", "--provider", "local")
	if !strings.Contains(out, "llama3.1:8b") || strings.Contains(out, "gpt-4o") {
		t.Fatalf("unexpected models output:\n%s", out)
	}
}
