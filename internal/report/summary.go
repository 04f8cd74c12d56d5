package report

import (
	"sort"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// ProjectSummary aggregates one path id.
type ProjectSummary struct {
	PathID        string `json:"path_id"`
	Batches       int    `json:"batches"`
	Conversations int    `json:"conversations"`
	Turns         int    `json:"turns"`
}

// Summary is the plain-data aggregate of a run. Rendering is separate so the
// API and event bus can ship the same numbers the console shows.
type Summary struct {
	RunID         string           `json:"run_id"`
	Output        string           `json:"output"`
	Batches       int              `json:"batches"`
	Conversations int              `json:"conversations"`
	Empty         int              `json:"empty"`
	Failed        int              `json:"failed"`
	Turns         int              `json:"turns"`
	SkippedLines  int              `json:"skipped_lines"`
	Dropped       int              `json:"dropped_records"`
	Models        []string         `json:"models"`
	Projects      []ProjectSummary `json:"projects"`

	models   map[string]struct{}
	projects map[string]int
}

// New starts an empty summary.
func New(runID, output string) *Summary {
	return &Summary{
		RunID:    runID,
		Output:   output,
		Models:   []string{},
		models:   make(map[string]struct{}),
		projects: make(map[string]int),
	}
}

func (s *Summary) project(pathID string) *ProjectSummary {
	if i, ok := s.projects[pathID]; ok {
		return &s.Projects[i]
	}
	s.Projects = append(s.Projects, ProjectSummary{PathID: pathID})
	s.projects[pathID] = len(s.Projects) - 1
	return &s.Projects[len(s.Projects)-1]
}

// AddConversation counts a folded batch.
func (s *Summary) AddConversation(conv *thread.Conversation) {
	p := s.project(conv.Metadata.PathID)
	p.Batches++
	p.Conversations++
	p.Turns += len(conv.Turns)

	s.Batches++
	s.Conversations++
	s.Turns += len(conv.Turns)
	for _, m := range conv.Metadata.Models {
		if _, ok := s.models[m]; ok {
			continue
		}
		s.models[m] = struct{}{}
		s.Models = append(s.Models, m)
	}
	sort.Strings(s.Models)
}

// AddEmpty counts a batch that produced no conversation.
func (s *Summary) AddEmpty(pathID string) {
	s.project(pathID).Batches++
	s.Batches++
	s.Empty++
}

// AddFailure counts a batch that could not be read or was rejected.
func (s *Summary) AddFailure(pathID string) {
	s.project(pathID).Batches++
	s.Batches++
	s.Failed++
}

// AddDiagnostics accumulates per-batch loss counters.
func (s *Summary) AddDiagnostics(skippedLines int, r thread.Report) {
	s.SkippedLines += skippedLines
	s.Dropped += r.Structural()
}

// AverageTurns is the mean number of turns per conversation.
func (s *Summary) AverageTurns() float64 {
	if s.Conversations == 0 {
		return 0
	}
	return float64(s.Turns) / float64(s.Conversations)
}
