package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	l, err := New("warn", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn logger should drop info and keep warn")
	}
	d, err := New("error", true)
	if err != nil {
		t.Fatalf("new debug: %v", err)
	}
	if !d.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug flag should enable debug level")
	}
	if _, err := New("loud", false); err == nil {
		t.Fatal("expected error for bad level")
	}
	if OrNop(nil) == nil {
		t.Fatal("OrNop returned nil")
	}
}
