// Package session keeps the per-conversation context (dataset, dictionary
// and chat history) outside the analysis core.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("session not found")

// Turn is one answered question.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// Session is the explicit context passed into the question pipeline.
type Session struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DatasetPath    string    `json:"dataset_path"`
	DictionaryPath string    `json:"dictionary_path,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	History        []Turn    `json:"history"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// New creates an unsaved session with a fresh id.
func New(name, datasetPath, dictionaryPath string) *Session {
	now := clock()
	s := &Session{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(name),
		DatasetPath:    datasetPath,
		DictionaryPath: dictionaryPath,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.Name == "" {
		s.Name = s.ID[:8]
	}
	return s
}

// AddTurn appends an answered question to the history.
func (s *Session) AddTurn(question, answer, provider, model string) {
	s.History = append(s.History, Turn{
		Question: question,
		Answer:   answer,
		Provider: provider,
		Model:    model,
		AskedAt:  clock(),
	})
	s.UpdatedAt = clock()
}

// clock drops sub-microsecond precision so timestamps survive every backend.
func clock() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Recent returns the last n turns, oldest first.
func (s *Session) Recent(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	return s.History[len(s.History)-n:]
}

// Store persists sessions. Implementations are safe for concurrent use.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Backend names accepted by session_backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open returns the store for backend. target is a directory for the file
// and sqlite backends and a connection string for postgres.
func Open(backend, target string, log *zap.Logger) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileStore(target, log)
	case BackendSQLite:
		return NewSQLiteStore(target, log)
	case BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return NewPostgresStore(ctx, target, log)
	default:
		return nil, fmt.Errorf("unknown session backend %q (valid: file, sqlite, postgres)", backend)
	}
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return nil
}
