package thread

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
)

// ErrStrictViolation is returned in strict mode when a batch contains records
// that could not be placed in any tree.
var ErrStrictViolation = goerr.New("batch has records outside every tree")

// Options controls how an Engine treats records the traversal had to leave out.
type Options struct {
	// Strict fails the batch on any structural diagnostic instead of
	// silently dropping the affected records.
	Strict bool
}

// Report summarizes what happened to a batch's records.
type Report struct {
	Records     int          `json:"records"`
	Ordered     int          `json:"ordered"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Structural counts the diagnostics that describe broken trees.
func (r Report) Structural() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Structural() {
			n++
		}
	}
	return n
}

// Engine runs linearization and folding for one batch at a time. It holds no
// per-batch state, so a single Engine can serve concurrent callers.
type Engine struct {
	folder *Folder
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an engine that seeds every conversation with seed.
func NewEngine(seed Turn, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		folder: NewFolder(seed),
		opts:   opts,
		logger: logger,
	}
}

// Process folds a batch. A nil conversation with a nil error means the batch
// produced nothing (empty, no roots, or no recognized roles).
func (e *Engine) Process(b Batch) (*Conversation, Report, error) {
	ordered, diags := Linearize(b.Records)
	report := Report{
		Records:     len(b.Records),
		Ordered:     len(ordered),
		Diagnostics: diags,
	}

	if n := report.Structural(); n > 0 {
		if e.opts.Strict {
			first := firstStructural(diags)
			return nil, report, goerr.Wrap(ErrStrictViolation, "records left out of traversal",
				goerr.V("path_id", b.PathID),
				goerr.V("batch_id", b.BatchID),
				goerr.V("count", n),
				goerr.V("first_kind", string(first.Kind)),
				goerr.V("first_record", first.RecordID),
			)
		}
		e.logger.Debug("records left out of traversal",
			"path_id", b.PathID,
			"batch_id", b.BatchID,
			"count", n,
		)
	}

	conv, ok := e.folder.Fold(b.PathID, b.BatchID, ordered)
	if !ok {
		return nil, report, nil
	}
	return conv, report, nil
}

func firstStructural(diags []Diagnostic) Diagnostic {
	for _, d := range diags {
		if d.Structural() {
			return d
		}
	}
	return Diagnostic{}
}
