// Package prompt assembles the single text request sent to the completion
// service for one question.
package prompt

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/tablechat-cli/internal/analysis"
	"github.com/KaramelBytes/tablechat-cli/internal/dictionary"
	"github.com/KaramelBytes/tablechat-cli/internal/normalize"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

// Strategy selects how the dataset is presented to the model.
type Strategy string

const (
	// StrategyProfile sends the full statistical profile.
	StrategyProfile Strategy = "profile"
	// StrategySample sends the first rows as CSV and asks for pandas code.
	StrategySample Strategy = "sample"
	// StrategyPersona sends the profile and asks for an analyst's narrative.
	StrategyPersona Strategy = "persona"
)

// ParseStrategy validates a strategy name; empty means StrategyProfile.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyProfile:
		return StrategyProfile, nil
	case StrategySample:
		return StrategySample, nil
	case StrategyPersona:
		return StrategyPersona, nil
	default:
		return "", fmt.Errorf("unknown prompt strategy %q (valid: profile, sample, persona)", s)
	}
}

// Exchange is one earlier question and the answer it received.
type Exchange struct {
	Question string
	Answer   string
}

// Sample is the head of the dataset rendered as text rows.
type Sample struct {
	Header []string
	Rows   [][]string
}

// Input carries everything the assembler needs.
type Input struct {
	Question       string
	Strategy       Strategy
	Reconciliation dictionary.Reconciliation
	Dictionary     *dictionary.Dictionary
	Profile        *analysis.Profile
	Sample         *Sample
	History        []Exchange
}

// Prompt is the assembled request text and its token estimate.
type Prompt struct {
	Text     string
	Tokens   int
	Sections map[string]int
}

var preambles = map[Strategy]string{
	StrategyProfile: "You are a data analyst answering questions about a tabular dataset. Use the column descriptions, the data dictionary and the computed profile below as your only source of facts.",
	StrategySample:  "You are a data assistant helping to analyze CSV data using pandas.",
	StrategyPersona: "You are a senior data analyst presenting findings to a business audience. Speak in plain language, ground every claim in the column descriptions, data dictionary and profile below, and point out caveats in the data.",
}

var tasks = map[Strategy]string{
	StrategyProfile: "Answer the question above using the dataset information provided. Quote the specific statistics you rely on. If the information is not sufficient to answer, say what is missing.",
	StrategySample:  "Answer the question above with Python pandas code that operates on a DataFrame named df, followed by a short explanation.",
	StrategyPersona: "Answer the question above as a short narrative with key figures, then list any caveats.",
}

// Assemble builds the prompt. Nothing is truncated; a prompt too large for
// the service is reported by the service.
func Assemble(in Input) (*Prompt, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, errors.New("question is empty")
	}
	if in.Strategy == "" {
		in.Strategy = StrategyProfile
	}
	preamble, ok := preambles[in.Strategy]
	if !ok {
		return nil, fmt.Errorf("unknown prompt strategy %q", in.Strategy)
	}

	var sb strings.Builder
	sections := map[string]int{}
	section := func(title, body string) {
		start := sb.Len()
		sb.WriteString("[")
		sb.WriteString(title)
		sb.WriteString("]\n")
		sb.WriteString(body)
		sb.WriteString("\n\n")
		sections[title] = utils.CountTokens(sb.String()[start:])
	}

	sb.WriteString(preamble)
	sb.WriteString("\n\n")
	if len(in.History) > 0 {
		section("CONVERSATION SO FAR", renderHistory(in.History))
	}
	section("QUESTION", in.Question)
	section("DATASET COLUMNS", RenderColumns(in.Reconciliation))
	section("DATA DICTIONARY", renderDictionary(in.Dictionary))
	if in.Strategy != StrategySample {
		if in.Profile == nil {
			return nil, errors.New("profile strategy requires a dataset profile")
		}
		b, err := normalize.JSON(in.Profile)
		if err != nil {
			return nil, err
		}
		section("DATASET PROFILE", string(b))
	}
	if in.Sample != nil && len(in.Sample.Rows) > 0 {
		rows, err := renderSample(in.Sample)
		if err != nil {
			return nil, err
		}
		section("SAMPLE ROWS", rows)
	}
	sb.WriteString("[TASK]\n")
	sb.WriteString(tasks[in.Strategy])
	sb.WriteString("\n")

	text := sb.String()
	return &Prompt{Text: text, Tokens: utils.CountTokens(text), Sections: sections}, nil
}

// RenderColumns lists each dataset column with its reconciled descriptor.
func RenderColumns(rec dictionary.Reconciliation) string {
	if len(rec) == 0 {
		return "(no columns)"
	}
	lines := make([]string, 0, len(rec))
	for _, m := range rec {
		if m.Field == nil || m.Kind == dictionary.MatchNone {
			lines = append(lines, fmt.Sprintf("- %s: no dictionary mapping", m.Column))
			continue
		}
		var desc []string
		if m.Field.DataType != "" {
			desc = append(desc, m.Field.DataType)
		}
		if m.Field.Description != "" {
			desc = append(desc, m.Field.Description)
		}
		detail := strings.Join(desc, ". ")
		if detail == "" {
			detail = "described in dictionary"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (%s match with dictionary field %q)", m.Column, detail, m.Kind, m.Field.Name))
	}
	return strings.Join(lines, "\n")
}

func renderDictionary(d *dictionary.Dictionary) string {
	if text := d.Text(); text != "" {
		return text
	}
	return "(no dictionary entries)"
}

func renderHistory(h []Exchange) string {
	var b strings.Builder
	for i, ex := range h {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("User: ")
		b.WriteString(ex.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.Answer)
	}
	return b.String()
}

func renderSample(s *Sample) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.Header); err != nil {
		return "", fmt.Errorf("render sample: %w", err)
	}
	if err := w.WriteAll(s.Rows); err != nil {
		return "", fmt.Errorf("render sample: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
