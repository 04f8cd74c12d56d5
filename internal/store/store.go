package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// ErrNotFound is returned when no conversation matches a lookup.
var ErrNotFound = goerr.New("conversation not found")

// Store writes conversations to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "ping database")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// encodeTurns renders turns the same way the JSONL export does.
func encodeTurns(turns []thread.Turn) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(turns); err != nil {
		return nil, goerr.Wrap(err, "encode turns")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeTurns(data []byte) ([]thread.Turn, error) {
	var turns []thread.Turn
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&turns); err != nil {
		return nil, goerr.Wrap(err, "decode turns")
	}
	return turns, nil
}

func metaVars(conv *thread.Conversation) []goerr.Option {
	return []goerr.Option{
		goerr.V("path_id", conv.Metadata.PathID),
		goerr.V("batch_id", conv.Metadata.BatchID),
	}
}
