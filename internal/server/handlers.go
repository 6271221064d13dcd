package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	"github.com/KaramelBytes/tablechat-cli/internal/dictionary"
	"github.com/KaramelBytes/tablechat-cli/internal/normalize"
	"github.com/KaramelBytes/tablechat-cli/internal/parser"
	"github.com/KaramelBytes/tablechat-cli/internal/pipeline"
	"github.com/KaramelBytes/tablechat-cli/internal/prompt"
	"github.com/KaramelBytes/tablechat-cli/internal/session"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

type sessionView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Dataset    string         `json:"dataset"`
	Dictionary string         `json:"dictionary,omitempty"`
	Strategy   string         `json:"strategy,omitempty"`
	History    []session.Turn `json:"history"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func viewOf(s *session.Session) sessionView {
	v := sessionView{
		ID:        s.ID,
		Name:      s.Name,
		Dataset:   filepath.Base(s.DatasetPath),
		Strategy:  s.Strategy,
		History:   s.History,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if v.History == nil {
		v.History = []session.Turn{}
	}
	if s.DictionaryPath != "" {
		v.Dictionary = filepath.Base(s.DictionaryPath)
	}
	return v
}

type createResponse struct {
	Session        sessionView               `json:"session"`
	Rows           int                       `json:"rows"`
	Columns        []string                  `json:"columns"`
	Reconciliation dictionary.Reconciliation `json:"reconciliation"`
	Warnings       []string                  `json:"warnings,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
	Strategy string `json:"strategy,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

type askResponse struct {
	Answer       string         `json:"answer,omitempty"`
	Prompt       string         `json:"prompt,omitempty"`
	PromptTokens int            `json:"prompt_tokens"`
	Sections     map[string]int `json:"sections,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Turns        int            `json:"turns"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var se *ai.ServiceError
	if errors.As(err, &se) {
		body.Hint = ai.Describe(err)
	}
	writeJSON(w, status, body)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, viewOf(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.loadSession(w, r); ok {
		writeJSON(w, http.StatusOK, viewOf(sess))
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if err := os.RemoveAll(filepath.Join(s.cfg.UploadDir, id)); err != nil {
		s.log.Warn("remove uploads", zap.String("session", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// createSession accepts a multipart form with a "dataset" file, an optional
// "dictionary" file and optional "name" and "strategy" fields. Both files
// are validated by a full analysis before the session is stored.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	strategy := r.FormValue("strategy")
	if _, err := prompt.ParseStrategy(strategy); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess := session.New(r.FormValue("name"), "", "")
	sess.Strategy = strings.ToLower(strings.TrimSpace(strategy))
	dir := filepath.Join(s.cfg.UploadDir, sess.ID)

	fail := func(status int, err error) {
		_ = os.RemoveAll(dir)
		writeError(w, status, err)
	}

	datasetPath, err := s.saveUpload(r, "dataset", dir, true)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	dictPath, err := s.saveUpload(r, "dictionary", dir, false)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	sess.DatasetPath, sess.DictionaryPath = datasetPath, dictPath

	a, err := pipeline.Analyze(datasetPath, dictPath, s.pipeline.Options, s.log)
	if err != nil {
		var mErr *table.MalformedInputError
		if errors.As(err, &mErr) || errors.Is(err, parser.ErrEmptyDocument) {
			fail(http.StatusUnprocessableEntity, err)
			return
		}
		fail(http.StatusBadRequest, err)
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	s.log.Info("session created",
		zap.String("session", sess.ID),
		zap.String("dataset", filepath.Base(datasetPath)),
		zap.Int("rows", a.Dataset.Rows))
	writeJSON(w, http.StatusCreated, createResponse{
		Session:        viewOf(sess),
		Rows:           a.Dataset.Rows,
		Columns:        uploadedColumns(a),
		Reconciliation: a.Reconciliation,
		Warnings:       a.Warnings,
	})
}

// uploadedColumns lists the dataset columns without the derived date parts.
func uploadedColumns(a *pipeline.Analysis) []string {
	header := a.Dataset.ColumnNames()
	derived := make(map[string]struct{}, len(a.Profile.Derived))
	for _, d := range a.Profile.Derived {
		derived[d] = struct{}{}
	}
	out := make([]string, 0, len(header))
	for _, h := range header {
		if _, ok := derived[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}

func (s *Server) saveUpload(r *http.Request, field, dir string, required bool) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) && !required {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s file: %w", field, err)
	}
	defer file.Close()
	// one directory per field so a dictionary named like the dataset cannot replace it
	return writeUpload(file, header, filepath.Join(dir, field))
}

func writeUpload(file multipart.File, header *multipart.FileHeader, dir string) (string, error) {
	name, err := utils.SafeBase(header.Filename)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, errors.New("question is required"))
		return
	}
	var strategy prompt.Strategy
	if req.Strategy != "" {
		st, err := prompt.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		strategy = st
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()
	ans, err := s.pipeline.Ask(ctx, pipeline.Request{
		Question: req.Question,
		Strategy: strategy,
		Session:  sess,
		DryRun:   req.DryRun,
	})
	if err != nil {
		var se *ai.ServiceError
		var mErr *table.MalformedInputError
		switch {
		case errors.As(err, &se):
			writeError(w, http.StatusBadGateway, err)
		case errors.As(err, &mErr):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	resp := askResponse{
		Answer:       ans.Text,
		PromptTokens: ans.Prompt.Tokens,
		Sections:     ans.Prompt.Sections,
		Warnings:     ans.Warnings,
		Turns:        len(sess.History),
	}
	if req.DryRun {
		resp.Prompt = ans.Prompt.Text
	}
	writeJSON(w, http.StatusOK, resp)
}

// profile returns the normalized profile as JSON, or the markdown report
// with ?format=markdown.
func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	a, err := pipeline.Analyze(sess.DatasetPath, sess.DictionaryPath, s.pipeline.Options, s.log)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":        normalize.Value(a.Profile),
			"reconciliation": normalize.Value(a.Reconciliation),
			"warnings":       a.Warnings,
		})
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, a.Profile.Markdown())
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q (use json or markdown)", r.URL.Query().Get("format")))
	}
}
