package hermes

import (
	"encoding/json"
	"time"

	"github.com/MikeSquared-Agency/threadfold/internal/report"
)

const (
	// SubjectBatchSubmitted carries raw batches for the serve command to fold.
	SubjectBatchSubmitted = "threadfold.batch.submitted"
	// SubjectBatchFolded announces each conversation written to a sink.
	SubjectBatchFolded = "threadfold.batch.folded"
	// SubjectRunCompleted carries the summary at the end of an organize run.
	SubjectRunCompleted = "threadfold.run.completed"
)

// BatchSubmittedEvent is a batch of raw records sent over the bus.
type BatchSubmittedEvent struct {
	PathID  string            `json:"path_id"`
	BatchID string            `json:"batch_id"`
	Records []json.RawMessage `json:"records"`
}

type BatchFoldedEvent struct {
	RunID     string   `json:"run_id,omitempty"`
	PathID    string   `json:"path_id"`
	BatchID   string   `json:"batch_id"`
	Turns     int      `json:"turns"`
	Models    []string `json:"models"`
	Timestamp string   `json:"timestamp,omitempty"`
	Dropped   int      `json:"dropped_records"`
}

type RunCompletedEvent struct {
	RunID     string          `json:"run_id"`
	Summary   *report.Summary `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}
