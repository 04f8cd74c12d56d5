package backfill

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	userLine      = `{"uuid":"u1","parentUuid":null,"type":"user","message":{"role":"user","content":"hello"},"timestamp":"2025-01-01T00:00:00Z"}`
	assistantLine = `{"uuid":"a1","parentUuid":"u1","type":"assistant","message":{"role":"assistant","model":"claude-sonnet-4","content":[{"type":"text","text":"hi"}]},"timestamp":"2025-01-01T00:00:05Z"}`
	summaryLine   = `{"uuid":"s1","type":"summary","summary":"greeting","leafUuid":"a1"}`
	orphanLine    = `{"uuid":"o1","parentUuid":"gone","message":{"role":"user","content":"lost"}}`
)

// writeProject creates <root>/projects/<pathID>/<batchID>.jsonl.
func writeProject(t *testing.T, root, pathID, batchID string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(root, "projects", pathID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, batchID+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// sampleTree lays out three batches: a full exchange, a batch with no
// recognized roles, and one with a bad line and an orphan.
func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeProject(t, root, "-proj-a", "s1", userLine, assistantLine)
	writeProject(t, root, "-proj-a", "s2", summaryLine)
	writeProject(t, root, "-proj-b", "s3", "not json", userLine, orphanLine)
	return root
}
