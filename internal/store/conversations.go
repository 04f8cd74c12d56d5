package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                 UUID PRIMARY KEY,
	path_id            TEXT NOT NULL,
	batch_id           TEXT NOT NULL,
	turns              JSONB NOT NULL,
	models             TEXT[] NOT NULL DEFAULT '{}',
	last_timestamp     TEXT NOT NULL DEFAULT '',
	conversation_turns INTEGER NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (path_id, batch_id)
)`

// EnsureSchema creates the conversations table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return goerr.Wrap(err, "create conversations table")
	}
	return nil
}

// Append upserts a conversation keyed by (path_id, batch_id), so re-running
// over the same logs replaces rows instead of duplicating them.
func (s *Store) Append(ctx context.Context, conv *thread.Conversation) error {
	_, err := s.Upsert(ctx, conv)
	return err
}

// Upsert writes conv and returns the row id.
func (s *Store) Upsert(ctx context.Context, conv *thread.Conversation) (uuid.UUID, error) {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return uuid.Nil, goerr.Wrap(err, "encode conversation", metaVars(conv)...)
	}

	models := conv.Metadata.Models
	if models == nil {
		models = []string{}
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, path_id, batch_id, turns, models, last_timestamp, conversation_turns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (path_id, batch_id) DO UPDATE SET
			turns = EXCLUDED.turns,
			models = EXCLUDED.models,
			last_timestamp = EXCLUDED.last_timestamp,
			conversation_turns = EXCLUDED.conversation_turns,
			updated_at = now()
		RETURNING id`,
		uuid.New(), conv.Metadata.PathID, conv.Metadata.BatchID, string(turns), models,
		conv.Metadata.Timestamp, conv.Metadata.TurnCount,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, goerr.Wrap(err, "upsert conversation", metaVars(conv)...)
	}
	return id, nil
}

// GetConversation loads one conversation by its batch key.
func (s *Store) GetConversation(ctx context.Context, pathID, batchID string) (*thread.Conversation, error) {
	var (
		raw  []byte
		conv = &thread.Conversation{Metadata: thread.Metadata{PathID: pathID, BatchID: batchID}}
	)
	err := s.pool.QueryRow(ctx, `
		SELECT turns, models, last_timestamp, conversation_turns
		FROM conversations
		WHERE path_id = $1 AND batch_id = $2`,
		pathID, batchID,
	).Scan(&raw, &conv.Metadata.Models, &conv.Metadata.Timestamp, &conv.Metadata.TurnCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "get conversation", goerr.V("path_id", pathID), goerr.V("batch_id", batchID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get conversation", goerr.V("path_id", pathID), goerr.V("batch_id", batchID))
	}

	if conv.Turns, err = decodeTurns(raw); err != nil {
		return nil, err
	}
	return conv, nil
}

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM conversations`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "count conversations")
	}
	return n, nil
}
