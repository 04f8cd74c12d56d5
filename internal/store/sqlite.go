package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                 TEXT PRIMARY KEY,
	path_id            TEXT NOT NULL,
	batch_id           TEXT NOT NULL,
	turns              TEXT NOT NULL,
	models             TEXT NOT NULL DEFAULT '[]',
	last_timestamp     TEXT NOT NULL DEFAULT '',
	conversation_turns INTEGER NOT NULL,
	created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE (path_id, batch_id)
)`

// SQLite is a single-file conversation store with the same table layout as
// the Postgres one.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "create sqlite directory", goerr.V("dir", dir))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "open sqlite", goerr.V("path", path))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "set journal mode", goerr.V("path", path))
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "create conversations table", goerr.V("path", path))
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Append upserts a conversation keyed by (path_id, batch_id).
func (s *SQLite) Append(ctx context.Context, conv *thread.Conversation) error {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return goerr.Wrap(err, "encode conversation", metaVars(conv)...)
	}
	models := conv.Metadata.Models
	if models == nil {
		models = []string{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return goerr.Wrap(err, "encode models", metaVars(conv)...)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, path_id, batch_id, turns, models, last_timestamp, conversation_turns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path_id, batch_id) DO UPDATE SET
			turns = excluded.turns,
			models = excluded.models,
			last_timestamp = excluded.last_timestamp,
			conversation_turns = excluded.conversation_turns,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		uuid.NewString(), conv.Metadata.PathID, conv.Metadata.BatchID, string(turns), string(modelsJSON),
		conv.Metadata.Timestamp, conv.Metadata.TurnCount,
	)
	if err != nil {
		return goerr.Wrap(err, "upsert conversation", metaVars(conv)...)
	}
	return nil
}

// GetConversation loads one conversation by its batch key.
func (s *SQLite) GetConversation(ctx context.Context, pathID, batchID string) (*thread.Conversation, error) {
	var (
		turns, models string
		conv          = &thread.Conversation{Metadata: thread.Metadata{PathID: pathID, BatchID: batchID}}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT turns, models, last_timestamp, conversation_turns
		FROM conversations
		WHERE path_id = ? AND batch_id = ?`,
		pathID, batchID,
	).Scan(&turns, &models, &conv.Metadata.Timestamp, &conv.Metadata.TurnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "get conversation", goerr.V("path_id", pathID), goerr.V("batch_id", batchID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get conversation", goerr.V("path_id", pathID), goerr.V("batch_id", batchID))
	}

	if err := json.Unmarshal([]byte(models), &conv.Metadata.Models); err != nil {
		return nil, goerr.Wrap(err, "decode models", goerr.V("batch_id", batchID))
	}
	if conv.Turns, err = decodeTurns([]byte(turns)); err != nil {
		return nil, err
	}
	return conv, nil
}

// CountConversations returns the number of stored conversations.
func (s *SQLite) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM conversations`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "count conversations")
	}
	return n, nil
}
