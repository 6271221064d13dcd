package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRuntime struct {
	text string
	err  error
	last GenerateRequest
}

func (f *fakeRuntime) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &GenerateResponse{Choices: []Choice{{Message: Message{Content: f.text}}}}, nil
}

type fakeStreamer struct{ fakeRuntime }

func (f *fakeStreamer) GenerateStream(_ context.Context, _ GenerateRequest, onDelta func(string)) error {
	for _, p := range strings.SplitAfter(f.text, " ") {
		onDelta(p)
	}
	return f.err
}

func TestCompleterComplete(t *testing.T) {
	rt := &fakeRuntime{text: "42"}
	c := NewCompleter(rt, ProviderGemini, "gemini-2.0-flash-lite", 256, 0.2)
	got, err := c.Complete(context.Background(), "question")
	if err != nil || got != "42" {
		t.Fatalf("got %q, %v", got, err)
	}
	if rt.last.Model != "gemini-2.0-flash-lite" || rt.last.MaxTokens != 256 || rt.last.Messages[0].Content != "question" {
		t.Fatalf("request = %+v", rt.last)
	}
}

func TestCompleterWrapsFailures(t *testing.T) {
	cause := &AuthError{APIError: &APIError{StatusCode: 401, Message: "bad key"}}
	c := NewCompleter(&fakeRuntime{err: cause}, ProviderOpenRouter, "m", 0, 0)
	_, err := c.Complete(context.Background(), "q")
	var se *ServiceError
	if !errors.As(err, &se) || se.Provider != ProviderOpenRouter {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	var auth *AuthError
	if !errors.As(err, &auth) || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("cause not preserved: %v", err)
	}
	if !strings.Contains(Describe(err), "credentials") {
		t.Fatalf("describe = %q", Describe(err))
	}

	_, err = NewCompleter(&fakeRuntime{text: "  "}, ProviderOllama, "m", 0, 0).Complete(context.Background(), "q")
	if !errors.As(err, &se) {
		t.Fatalf("empty answer should be a ServiceError, got %v", err)
	}
	_, err = NewCompleter(nil, ProviderOllama, "m", 0, 0).Complete(context.Background(), "q")
	if !errors.As(err, &se) {
		t.Fatalf("nil runtime should be a ServiceError, got %v", err)
	}
}

func TestCompleterStream(t *testing.T) {
	var parts []string
	c := NewCompleter(&fakeStreamer{fakeRuntime{text: "one two three"}}, ProviderOllama, "m", 0, 0)
	got, err := c.Stream(context.Background(), "q", func(s string) { parts = append(parts, s) })
	if err != nil || got != "one two three" || len(parts) != 3 {
		t.Fatalf("got %q parts=%v err=%v", got, parts, err)
	}

	parts = nil
	got, err = NewCompleter(&fakeRuntime{text: "whole"}, ProviderGemini, "m", 0, 0).Stream(context.Background(), "q", func(s string) { parts = append(parts, s) })
	if err != nil || got != "whole" || len(parts) != 1 {
		t.Fatalf("fallback got %q parts=%v err=%v", got, parts, err)
	}
}

func TestContextWarningAndRegistry(t *testing.T) {
	if w := ContextWarning("phi3:mini-4k-instruct", 5000, 0); w == "" {
		t.Fatalf("expected warning")
	}
	if w := ContextWarning("phi3:mini-4k-instruct", 100, 100); w != "" {
		t.Fatalf("unexpected warning %q", w)
	}
	if w := ContextWarning("unknown-model", 1<<30, 0); w != "" {
		t.Fatalf("unknown models should not warn")
	}
	for _, p := range []string{ProviderGemini, ProviderOllama, ProviderOpenRouter} {
		if _, err := NewRuntime(p, RuntimeConfig{APIKey: "k"}); err != nil {
			t.Fatalf("NewRuntime(%s): %v", p, err)
		}
	}
	if _, err := NewRuntime("nope", RuntimeConfig{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestDefaultModel(t *testing.T) {
	if DefaultModel(ProviderGemini) != DefaultGeminiModel {
		t.Fatalf("gemini default: %s", DefaultModel(ProviderGemini))
	}
	if _, ok := LookupModel(DefaultModel(ProviderOllama)); !ok {
		t.Fatalf("ollama default should be in the catalog")
	}
	if DefaultModel("") != "openai/gpt-4o-mini" {
		t.Fatalf("fallback default: %s", DefaultModel(""))
	}
}
