package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/tablechat-cli/internal/logging"
	"github.com/KaramelBytes/tablechat-cli/internal/utils"
)

const sqliteFileName = "sessions.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	dataset_path TEXT NOT NULL,
	dictionary_path TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	asked_at TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SQLiteStore keeps sessions and their turns in a single sqlite file.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens (or creates) dir/sessions.db.
func NewSQLiteStore(dir string, log *zap.Logger) (*SQLiteStore, error) {
	log = logging.OrNop(log)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure sessions dir: %w", err)
	}
	path := filepath.Join(dir, sqliteFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Debug("sqlite session store opened", zap.String("path", path))
	return &SQLiteStore{db: db, log: log}, nil
}

// Save upserts the session row and replaces its turns in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) (err error) {
	if err := validID(sess.ID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (id, name, dataset_path, dictionary_path, strategy, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	dataset_path = excluded.dataset_path,
	dictionary_path = excluded.dictionary_path,
	strategy = excluded.strategy,
	updated_at = excluded.updated_at`,
		sess.ID, sess.Name, sess.DatasetPath, sess.DictionaryPath, sess.Strategy,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO turns (session_id, seq, question, answer, provider, model, asked_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare turn insert: %w", err)
	}
	defer stmt.Close()
	for i, t := range sess.History {
		if _, err = stmt.ExecContext(ctx, sess.ID, i, t.Question, t.Answer, t.Provider, t.Model, formatTime(t.AskedAt)); err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("session saved", zap.String("id", sess.ID), zap.Int("turns", len(sess.History)))
	return nil
}

// Load reads a session and its turns.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, dataset_path, dictionary_path, strategy, created_at, updated_at
FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadTurns(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, sess *Session) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT question, answer, provider, model, asked_at
FROM turns WHERE session_id = ? ORDER BY seq`, sess.ID)
	if err != nil {
		return fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()
	sess.History = nil
	for rows.Next() {
		var t Turn
		var asked string
		if err := rows.Scan(&t.Question, &t.Answer, &t.Provider, &t.Model, &asked); err != nil {
			return fmt.Errorf("scan turn: %w", err)
		}
		if t.AskedAt, err = parseTime(asked); err != nil {
			return fmt.Errorf("turn of session %s: %w", sess.ID, err)
		}
		sess.History = append(sess.History, t)
	}
	return rows.Err()
}

// List returns all sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, dataset_path, dictionary_path, strategy, created_at, updated_at
FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, sess := range out {
		if err := s.loadTurns(ctx, sess); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a session and its turns.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.log.Debug("session deleted", zap.String("id", id))
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var sess Session
	var created, updated string
	err := r.Scan(&sess.ID, &sess.Name, &sess.DatasetPath, &sess.DictionaryPath, &sess.Strategy, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("session %s created_at: %w", sess.ID, err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("session %s updated_at: %w", sess.ID, err)
	}
	return &sess, nil
}

// fixed width so updated_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
