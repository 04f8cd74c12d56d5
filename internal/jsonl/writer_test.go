package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

func sampleConversation(batchID, text string) *thread.Conversation {
	return &thread.Conversation{
		Turns: []thread.Turn{
			{Speaker: thread.SpeakerHuman, Blocks: []thread.Block{thread.TextBlock(text)}},
		},
		Metadata: thread.Metadata{BatchID: batchID, PathID: "-proj", Models: []string{}, TurnCount: 1},
	}
}

func TestWriter_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	if err := w.Append(ctx, sampleConversation("s1", "<b>héllo</b>")); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(ctx, sampleConversation("s2", "bye")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "<b>héllo</b>") {
		t.Errorf("expected unescaped UTF-8 and HTML, got %s", lines[0])
	}

	var got thread.Conversation
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("line is not a conversation: %v", err)
	}
	if got.Metadata.BatchID != "s2" {
		t.Errorf("batch id = %q", got.Metadata.BatchID)
	}
}

func TestCreate_TruncateAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	ctx := context.Background()

	w, err := Create(path, false)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(ctx, sampleConversation("s1", "a"))
	w.Close()

	w, err = Create(path, true)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(ctx, sampleConversation("s2", "b"))
	w.Close()

	if n := countLines(t, path); n != 2 {
		t.Errorf("append mode: expected 2 lines, got %d", n)
	}

	w, err = Create(path, false)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(ctx, sampleConversation("s3", "c"))
	w.Close()

	if n := countLines(t, path); n != 1 {
		t.Errorf("truncate mode: expected 1 line, got %d", n)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	s := bufio.NewScanner(f)
	for s.Scan() {
		n++
	}
	return n
}
