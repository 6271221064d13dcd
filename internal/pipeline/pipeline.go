// Package pipeline runs one question end to end: load the dataset and its
// dictionary, reconcile and profile, assemble the prompt and ask the
// completion service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	"github.com/KaramelBytes/tablechat-cli/internal/analysis"
	"github.com/KaramelBytes/tablechat-cli/internal/dictionary"
	"github.com/KaramelBytes/tablechat-cli/internal/logging"
	"github.com/KaramelBytes/tablechat-cli/internal/parser"
	"github.com/KaramelBytes/tablechat-cli/internal/prompt"
	"github.com/KaramelBytes/tablechat-cli/internal/session"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// Completer answers a fully assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Streamer is implemented by completers that can report partial output.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onDelta func(string)) (string, error)
}

// Options controls profiling and the prompt sample.
type Options struct {
	Profile    analysis.Options
	SampleRows int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{Profile: analysis.DefaultOptions(), SampleRows: 5}
}

// Analysis is everything derived from one dataset and dictionary pair.
type Analysis struct {
	Dataset        *table.Dataset
	Document       *parser.Document
	Dictionary     *dictionary.Dictionary
	Roles          dictionary.Roles
	Reconciliation dictionary.Reconciliation
	Profile        *analysis.Profile
	Sample         *prompt.Sample
	Warnings       []string
}

// Analyze loads both files from disk. dictionaryPath may be empty.
func Analyze(datasetPath, dictionaryPath string, opt Options, log *zap.Logger) (*Analysis, error) {
	ds, err := table.LoadFile(datasetPath)
	if err != nil {
		return nil, err
	}
	var doc *parser.Document
	if strings.TrimSpace(dictionaryPath) != "" {
		doc, err = parser.LoadFile(dictionaryPath)
		if err != nil {
			return nil, err
		}
	}
	return AnalyzeDataset(ds, doc, opt, log), nil
}

// AnalyzeDataset reconciles and profiles an already loaded dataset. The
// sample rows are taken before profiling so they show the uploaded columns
// only. ds is modified in place.
func AnalyzeDataset(ds *table.Dataset, doc *parser.Document, opt Options, log *zap.Logger) *Analysis {
	log = logging.OrNop(log)
	start := time.Now()
	a := &Analysis{Dataset: ds, Document: doc}

	if doc != nil {
		a.Dictionary, a.Roles = doc.Compile()
		if doc.Structured() {
			if missing := a.Roles.Missing(); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, r := range missing {
					names[i] = r.String()
				}
				a.Warnings = append(a.Warnings, fmt.Sprintf("dictionary %s: could not identify %s column(s)", doc.Name, strings.Join(names, ", ")))
			}
		}
	} else {
		a.Dictionary = dictionary.FromText("")
		a.Roles = dictionary.Roles{Name: -1, Type: -1, Description: -1}
	}
	a.Reconciliation = dictionary.Reconcile(ds.ColumnNames(), a.Dictionary)

	if opt.SampleRows > 0 {
		header, rows := ds.Head(opt.SampleRows)
		a.Sample = &prompt.Sample{Header: header, Rows: rows}
	}

	a.Profile = analysis.ProfileDataset(ds, opt.Profile)
	a.Warnings = append(a.Warnings, a.Profile.Warnings...)

	log.Debug("dataset analyzed",
		zap.String("dataset", ds.Name),
		zap.Int("rows", ds.Rows),
		zap.Int("columns", a.Profile.ColumnCount),
		zap.Int("dictionary_fields", a.Dictionary.Len()),
		zap.Int("exact", a.Reconciliation.Count(dictionary.MatchExact)),
		zap.Int("fuzzy", a.Reconciliation.Count(dictionary.MatchFuzzy)),
		zap.Int("unmatched", a.Reconciliation.Count(dictionary.MatchNone)),
		zap.Duration("duration", time.Since(start)))
	for _, w := range a.Profile.Warnings {
		log.Warn("profile degraded", zap.String("dataset", ds.Name), zap.String("warning", w))
	}
	return a
}

// Pipeline answers questions against a session.
type Pipeline struct {
	Completer Completer
	Store     session.Store
	Log       *zap.Logger
	Options   Options
	// Provider and Model are recorded on each turn and used for the
	// context-window warning.
	Provider     string
	Model        string
	MaxTokens    int
	HistoryTurns int
}

// Request is one question.
type Request struct {
	Question string
	Strategy prompt.Strategy
	Session  *session.Session
	// DryRun assembles the prompt without calling the service.
	DryRun bool
	// OnDelta, when set, receives partial output from streaming completers.
	OnDelta func(string)
}

// Answer is the result of one question.
type Answer struct {
	Text     string
	Prompt   *prompt.Prompt
	Analysis *Analysis
	Warnings []string
}

// Ask runs the whole pipeline for req. On success the turn is appended to
// the session history and, when a store is set, the session is saved.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Answer, error) {
	log := logging.OrNop(p.Log)
	sess := req.Session
	if sess == nil {
		return nil, errors.New("no session")
	}
	strategy := req.Strategy
	if strategy == "" {
		s, err := prompt.ParseStrategy(sess.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = s
	}

	a, err := Analyze(sess.DatasetPath, sess.DictionaryPath, p.Options, log)
	if err != nil {
		return nil, err
	}

	var history []prompt.Exchange
	for _, t := range sess.Recent(p.HistoryTurns) {
		history = append(history, prompt.Exchange{Question: t.Question, Answer: t.Answer})
	}
	pr, err := prompt.Assemble(prompt.Input{
		Question:       req.Question,
		Strategy:       strategy,
		Reconciliation: a.Reconciliation,
		Dictionary:     a.Dictionary,
		Profile:        a.Profile,
		Sample:         a.Sample,
		History:        history,
	})
	if err != nil {
		return nil, err
	}
	ans := &Answer{Prompt: pr, Analysis: a, Warnings: append([]string(nil), a.Warnings...)}
	if w := ai.ContextWarning(p.Model, pr.Tokens, p.MaxTokens); w != "" {
		ans.Warnings = append(ans.Warnings, w)
	}
	log.Debug("prompt assembled",
		zap.String("session", sess.ID),
		zap.String("strategy", string(strategy)),
		zap.Int("tokens", pr.Tokens),
		zap.Int("history_turns", len(history)))
	if req.DryRun {
		return ans, nil
	}
	if p.Completer == nil {
		return nil, errors.New("no completion service configured")
	}

	start := time.Now()
	var text string
	if s, ok := p.Completer.(Streamer); ok && req.OnDelta != nil {
		text, err = s.Stream(ctx, pr.Text, req.OnDelta)
	} else {
		text, err = p.Completer.Complete(ctx, pr.Text)
	}
	if err != nil {
		log.Error("completion failed",
			zap.String("session", sess.ID),
			zap.String("provider", p.Provider),
			zap.String("model", p.Model),
			zap.Error(err))
		return nil, err
	}
	log.Info("question answered",
		zap.String("session", sess.ID),
		zap.String("provider", p.Provider),
		zap.String("model", p.Model),
		zap.Int("prompt_tokens", pr.Tokens),
		zap.Duration("duration", time.Since(start)))
	ans.Text = text

	sess.AddTurn(req.Question, text, p.Provider, p.Model)
	if p.Store != nil {
		if err := p.Store.Save(ctx, sess); err != nil {
			return ans, fmt.Errorf("save session: %w", err)
		}
	}
	return ans, nil
}
