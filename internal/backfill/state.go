package backfill

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// RunState tracks progress for resumable organize runs. It is saved after
// every batch, so a batch is the unit of restart.
type RunState struct {
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	LastProcessedAt      time.Time `json:"last_processed_at"`
	FilesProcessed       []string  `json:"files_processed"`
	FilesRemaining       int       `json:"files_remaining"`
	ConversationsWritten int       `json:"conversations_written"`
	TurnsWritten         int       `json:"turns_written"`
	Errors               []string  `json:"errors"`

	path      string // not serialized
	processed map[string]struct{}
}

// NewState returns an empty state that will be saved to path.
func NewState(path, runID string) *RunState {
	return &RunState{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		path:      path,
		processed: make(map[string]struct{}),
	}
}

// LoadState loads the state from path, or returns a fresh one when the file
// does not exist yet.
func LoadState(path, runID string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(path, runID), nil
		}
		return nil, goerr.Wrap(err, "failed to read state", goerr.V("path", path))
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, goerr.Wrap(err, "failed to parse state", goerr.V("path", path))
	}
	s.path = path
	s.processed = make(map[string]struct{}, len(s.FilesProcessed))
	for _, f := range s.FilesProcessed {
		s.processed[f] = struct{}{}
	}
	return &s, nil
}

// Save persists the state to disk.
func (s *RunState) Save() error {
	if s.path == "" {
		return nil
	}
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create state directory", goerr.V("path", s.path))
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write state", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return goerr.Wrap(err, "failed to replace state", goerr.V("path", s.path))
	}
	return nil
}

// IsProcessed returns true if the given file has already been processed.
func (s *RunState) IsProcessed(path string) bool {
	_, ok := s.processed[path]
	return ok
}

// MarkProcessed records a file as processed.
func (s *RunState) MarkProcessed(path string) {
	if s.processed == nil {
		s.processed = make(map[string]struct{})
	}
	if _, ok := s.processed[path]; ok {
		return
	}
	s.processed[path] = struct{}{}
	s.FilesProcessed = append(s.FilesProcessed, path)
}

// AddError records a processing error.
func (s *RunState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}
