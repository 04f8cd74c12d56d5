package backfill

import (
	"context"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// BatchFile is one session log discovered on disk. Each file is folded
// independently into at most one conversation.
type BatchFile struct {
	Path    string
	PathID  string // project directory name under projects/
	BatchID string // file name without .jsonl
}

// Sink receives folded conversations in discovery order.
type Sink interface {
	Append(ctx context.Context, conv *thread.Conversation) error
	Close() error
}

// Publisher announces batch results on the event bus. A nil Publisher is
// valid and disables events.
type Publisher interface {
	Publish(subject string, data any) error
}

// BatchResult is the outcome of folding one file.
type BatchResult struct {
	File         BatchFile
	Conversation *thread.Conversation
	Report       thread.Report
	SkippedLines []int // 1-based numbers of undecodable lines
	Err          error
}
