package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tablechat-cli/internal/logging"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tablechat_sessions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	dataset_path TEXT NOT NULL,
	dictionary_path TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tablechat_turns (
	session_id TEXT NOT NULL REFERENCES tablechat_sessions(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	asked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

const postgresSelectSession = `
SELECT id, name, dataset_path, dictionary_path, strategy, created_at, updated_at
FROM tablechat_sessions`

// PostgresStore keeps sessions in a shared Postgres database so several
// servers can serve the same sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresStore connects to dsn and creates the tables when missing.
func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	log = logging.OrNop(log)
	if dsn == "" {
		return nil, fmt.Errorf("postgres session backend needs session_dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Debug("postgres session store opened", zap.String("host", pool.Config().ConnConfig.Host))
	return &PostgresStore{pool: pool, log: log}, nil
}

// Save upserts the session row and replaces its turns in one transaction.
func (s *PostgresStore) Save(ctx context.Context, sess *Session) error {
	if err := validID(sess.ID); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO tablechat_sessions (id, name, dataset_path, dictionary_path, strategy, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	dataset_path = EXCLUDED.dataset_path,
	dictionary_path = EXCLUDED.dictionary_path,
	strategy = EXCLUDED.strategy,
	updated_at = EXCLUDED.updated_at`,
			sess.ID, sess.Name, sess.DatasetPath, sess.DictionaryPath, sess.Strategy,
			sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tablechat_turns WHERE session_id = $1`, sess.ID); err != nil {
			return fmt.Errorf("clear turns: %w", err)
		}
		if len(sess.History) == 0 {
			return nil
		}
		rows := make([][]any, len(sess.History))
		for i, t := range sess.History {
			rows[i] = []any{sess.ID, int32(i), t.Question, t.Answer, t.Provider, t.Model, t.AskedAt.UTC()}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"tablechat_turns"},
			[]string{"session_id", "seq", "question", "answer", "provider", "model", "asked_at"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy turns: %w", err)
		}
		s.log.Debug("session saved", zap.String("id", sess.ID), zap.Int("turns", len(sess.History)))
		return nil
	})
}

// Load reads a session and its turns.
func (s *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	sess, err := scanPgSession(s.pool.QueryRow(ctx, postgresSelectSession+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) loadTurns(ctx context.Context, sess *Session) error {
	rows, err := s.pool.Query(ctx, `
SELECT question, answer, provider, model, asked_at
FROM tablechat_turns WHERE session_id = $1 ORDER BY seq`, sess.ID)
	if err != nil {
		return fmt.Errorf("query turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := r.Scan(&t.Question, &t.Answer, &t.Provider, &t.Model, &t.AskedAt)
		return t, err
	})
	if err != nil {
		return fmt.Errorf("scan turns: %w", err)
	}
	if len(turns) == 0 {
		turns = nil
	}
	sess.History = turns
	return nil
}

// List returns all sessions, most recently updated first.
func (s *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, postgresSelectSession+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*Session, error) {
		return scanPgSession(r)
	})
	if err != nil {
		return nil, err
	}
	for _, sess := range out {
		if err := s.loadTurns(ctx, sess); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a session; its turns go with it through the cascade.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tablechat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.log.Debug("session deleted", zap.String("id", id))
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgSession(r pgx.Row) (*Session, error) {
	var sess Session
	var created, updated time.Time
	err := r.Scan(&sess.ID, &sess.Name, &sess.DatasetPath, &sess.DictionaryPath, &sess.Strategy, &created, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = created.UTC()
	sess.UpdatedAt = updated.UTC()
	return &sess, nil
}
