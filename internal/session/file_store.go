package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/logging"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

const sessionFileName = "session.json"

// FileStore keeps one directory per session with a session.json inside.
type FileStore struct {
	dir string
	log *zap.Logger
	mu  sync.RWMutex
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure sessions dir: %w", err)
	}
	return &FileStore{dir: dir, log: logging.OrNop(log)}, nil
}

// Dir returns the directory holding a session's files.
func (f *FileStore) Dir(id string) string { return filepath.Join(f.dir, id) }

// Save writes session.json atomically.
func (f *FileStore) Save(_ context.Context, s *Session) error {
	if err := validID(s.ID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := f.Dir(s.ID)
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, sessionFileName), data); err != nil {
		return err
	}
	f.log.Debug("session saved", zap.String("id", s.ID), zap.Int("turns", len(s.History)))
	return nil
}

// Load reads a session by id.
func (f *FileStore) Load(_ context.Context, id string) (*Session, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(filepath.Join(f.Dir(id), sessionFileName))
}

func (f *FileStore) read(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return &s, nil
}

// List returns all sessions, most recently updated first. Unreadable
// entries are logged and skipped.
func (f *FileStore) List(_ context.Context) ([]*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() || validID(e.Name()) != nil {
			continue
		}
		s, err := f.read(filepath.Join(f.dir, e.Name(), sessionFileName))
		if err != nil {
			f.log.Warn("skipping unreadable session", zap.String("id", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a session directory and everything in it.
func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := f.Dir(id)
	if _, err := os.Stat(filepath.Join(dir, sessionFileName)); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	f.log.Debug("session deleted", zap.String("id", id))
	return nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error { return nil }
