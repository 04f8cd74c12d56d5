package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

func sampleConversation(batchID string, text string) *thread.Conversation {
	return &thread.Conversation{
		Turns: []thread.Turn{
			{Speaker: thread.SpeakerSystem, Blocks: []thread.Block{thread.TextBlock("")}},
			{Speaker: thread.SpeakerHuman, Blocks: []thread.Block{thread.TextBlock(text)}},
			{Speaker: thread.SpeakerGPT, Blocks: []thread.Block{{"type": "tool_use", "id": "t1", "input": map[string]any{"n": json.Number("12345678901234567890")}}}},
		},
		Metadata: thread.Metadata{
			BatchID:   batchID,
			PathID:    "-proj",
			Models:    []string{"claude-sonnet-4"},
			Timestamp: "2025-01-01T00:00:05Z",
			TurnCount: 3,
		},
	}
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "threadfold.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_AppendAndGet(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	gt.NoError(t, s.Append(ctx, sampleConversation("s1", "<b>hello</b>")))

	got, err := s.GetConversation(ctx, "-proj", "s1")
	gt.NoError(t, err)
	gt.A(t, got.Turns).Length(3)
	gt.V(t, got.Turns[1].Speaker).Equal(thread.SpeakerHuman)
	gt.V(t, got.Turns[1].Blocks[0]["text"]).Equal(any("<b>hello</b>"))
	gt.V(t, got.Metadata.TurnCount).Equal(3)
	gt.V(t, got.Metadata.Timestamp).Equal("2025-01-01T00:00:05Z")
	gt.A(t, got.Metadata.Models).Length(1)

	input, ok := got.Turns[2].Blocks[0]["input"].(map[string]any)
	gt.True(t, ok)
	gt.V(t, input["n"]).Equal(any(json.Number("12345678901234567890")))
}

func TestSQLite_UpsertReplaces(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	gt.NoError(t, s.Append(ctx, sampleConversation("s1", "first")))
	gt.NoError(t, s.Append(ctx, sampleConversation("s1", "second")))
	gt.NoError(t, s.Append(ctx, sampleConversation("s2", "other")))

	n, err := s.CountConversations(ctx)
	gt.NoError(t, err)
	gt.V(t, n).Equal(2)

	got, err := s.GetConversation(ctx, "-proj", "s1")
	gt.NoError(t, err)
	gt.V(t, got.Turns[1].Blocks[0]["text"]).Equal(any("second"))
}

func TestSQLite_NotFound(t *testing.T) {
	s := openTestSQLite(t)

	_, err := s.GetConversation(context.Background(), "-proj", "missing")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_NilModels(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	conv := sampleConversation("s1", "x")
	conv.Metadata.Models = nil
	gt.NoError(t, s.Append(ctx, conv))

	got, err := s.GetConversation(ctx, "-proj", "s1")
	gt.NoError(t, err)
	gt.V(t, got.Metadata.Models).NotNil()
	gt.A(t, got.Metadata.Models).Length(0)
}
