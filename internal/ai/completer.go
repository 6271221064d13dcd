package ai

import (
	"context"
	"errors"
	"strings"
)

// Completer turns a Runtime into a single-prompt text completion service.
type Completer struct {
	rt          Runtime
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewCompleter wraps rt for the given provider and model.
func NewCompleter(rt Runtime, provider, model string, maxTokens int, temperature float64) *Completer {
	return &Completer{rt: rt, Provider: provider, Model: model, MaxTokens: maxTokens, Temperature: temperature}
}

func (c *Completer) request(prompt string) GenerateRequest {
	return GenerateRequest{
		Model:       c.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

func (c *Completer) wrap(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Provider: c.Provider, Model: c.Model, Err: err}
}

// Complete sends prompt and returns the model's text. Every failure is a
// *ServiceError.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if c.rt == nil {
		return "", c.wrap(errors.New("no runtime configured"))
	}
	resp, err := c.rt.Generate(ctx, c.request(prompt))
	if err != nil {
		return "", c.wrap(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", c.wrap(errors.New("empty response"))
	}
	return text, nil
}

// Stream sends prompt and reports partial output through onDelta when the
// runtime supports streaming; otherwise it behaves like Complete and emits
// the whole answer once. The full text is returned either way.
func (c *Completer) Stream(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	sr, ok := c.rt.(StreamRuntime)
	if !ok {
		text, err := c.Complete(ctx, prompt)
		if err == nil && onDelta != nil {
			onDelta(text)
		}
		return text, err
	}
	var b strings.Builder
	err := sr.GenerateStream(ctx, c.request(prompt), func(s string) {
		b.WriteString(s)
		if onDelta != nil {
			onDelta(s)
		}
	})
	if err != nil {
		return b.String(), c.wrap(err)
	}
	return b.String(), nil
}
