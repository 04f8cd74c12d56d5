//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_UpsertAndGetConversation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	batchID := "integration-test-" + uuid.New().String()[:8]

	conv := sampleConversation(batchID, "first")
	id, err := s.Upsert(ctx, conv)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected non-nil row ID")
	}

	conv = sampleConversation(batchID, "second")
	again, err := s.Upsert(ctx, conv)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if again != id {
		t.Errorf("upsert should keep row id %s, got %s", id, again)
	}

	got, err := s.GetConversation(ctx, "-proj", batchID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Turns[1].Blocks[0]["text"] != "second" {
		t.Errorf("expected replaced turns, got %v", got.Turns[1].Blocks)
	}
	if got.Metadata.TurnCount != 3 || len(got.Metadata.Models) != 1 {
		t.Errorf("metadata = %+v", got.Metadata)
	}

	t.Cleanup(func() {
		s.pool.Exec(context.Background(), `DELETE FROM conversations WHERE batch_id = $1`, batchID)
	})
}

func TestIntegration_GetMissingConversation(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetConversation(context.Background(), "-proj", "never-"+uuid.New().String())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
