package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultProvider != "openrouter" || c.SessionBackend != "file" || c.PromptStrategy != "profile" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.SampleRows != 5 || !c.Correlations || c.RetryMaxAttempts != 3 {
		t.Fatalf("unexpected numeric defaults: %+v", c)
	}
	if filepath.Base(c.SessionsDir) != "sessions" {
		t.Fatalf("sessions_dir default: %s", c.SessionsDir)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("default_model: from-file\nsample_rows: 9\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TABLECHAT_DEFAULT_MODEL", "from-env")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultModel != "from-env" {
		t.Fatalf("env should win, got %q", c.DefaultModel)
	}
	if c.SampleRows != 9 {
		t.Fatalf("file value lost: %d", c.SampleRows)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Set("session_backend", "SQLite"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set("cors_origins", "http://a.test, http://b.test,"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := Save(c, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".tablechat", "config.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	again, err := Load("")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.SessionBackend != "sqlite" || len(again.CORSOrigins) != 2 || again.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("values not persisted: %+v", again)
	}
}

func TestSetValidation(t *testing.T) {
	c := &Global{}
	bad := [][2]string{
		{"default_provider", "azure"},
		{"max_tokens", "0"},
		{"temperature", "3"},
		{"session_backend", "redis"},
		{"prompt_strategy", "rag"},
		{"correlations", "maybe"},
		{"log_level", "trace"},
		{"no_such_key", "x"},
	}
	for _, kv := range bad {
		if err := c.Set(kv[0], kv[1]); err == nil {
			t.Errorf("Set(%q, %q) expected error", kv[0], kv[1])
		}
	}
	if err := c.Set("default_provider", "local"); err != nil || c.DefaultProvider != "ollama" {
		t.Fatalf("alias not normalized: %q %v", c.DefaultProvider, err)
	}
	if err := c.Set("sample_rows", "0"); err != nil || c.SampleRows != 0 {
		t.Fatalf("sample_rows 0 should be allowed: %v", err)
	}
}

func TestKeysCoverSet(t *testing.T) {
	c := &Global{}
	for _, k := range Keys() {
		if err := c.Set(k, "bogus-value"); err != nil && err.Error() == "unknown key: "+k {
			t.Errorf("key %s listed but not settable", k)
		}
	}
}
