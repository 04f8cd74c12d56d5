package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/threadfold/internal/hermes"
	"github.com/MikeSquared-Agency/threadfold/internal/report"
	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// Config holds the organize command configuration.
type Config struct {
	ClaudeDir  string
	SingleFile string // process a single file only
	Resume     bool   // skip files recorded in the state file
	Workers    int
	Output     string // shown in the summary
}

// Runner folds every discovered session log and hands the conversations to a
// sink, one batch at a time and in discovery order.
type Runner struct {
	cfg    Config
	engine *thread.Engine
	sink   Sink
	events Publisher
	state  *RunState
	logger *slog.Logger
}

// NewRunner creates a runner. events may be nil.
func NewRunner(cfg Config, engine *thread.Engine, sink Sink, events Publisher, state *RunState, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:    cfg,
		engine: engine,
		sink:   sink,
		events: events,
		state:  state,
		logger: logger,
	}
}

// Run executes the organize pass. Per-batch failures are recorded and logged
// but never stop the run; only discovery errors and cancellation do.
func (r *Runner) Run(ctx context.Context) (*report.Summary, error) {
	summary := report.New(r.state.RunID, r.cfg.Output)

	files, err := r.discoverFiles()
	if err != nil {
		return summary, err
	}

	if r.cfg.Resume {
		pending := files[:0]
		for _, f := range files {
			if !r.state.IsProcessed(f.Path) {
				pending = append(pending, f)
			}
		}
		files = pending
	}

	r.state.FilesRemaining = len(files)
	r.logger.Info("files discovered", "files", len(files), "workers", r.cfg.Workers, "resume", r.cfg.Resume)

	// Batches are folded concurrently but emitted strictly in order; each
	// slot is written once by its worker and read once by the emit loop.
	results := make([]chan BatchResult, len(files))
	for i := range results {
		results[i] = make(chan BatchResult, 1)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i, f := range files {
			if ctx.Err() != nil {
				return
			}
			i, f := i, f
			g.Go(func() error {
				results[i] <- r.foldFile(f)
				return nil
			})
		}
	}()
	defer func() {
		<-produced
		_ = g.Wait()
	}()

	for i := range files {
		select {
		case <-ctx.Done():
			r.logger.Info("organize interrupted, saving state")
			if err := r.state.Save(); err != nil {
				r.logger.Warn("failed to save state", "error", err)
			}
			return summary, ctx.Err()
		case res := <-results[i]:
			r.emit(ctx, res, summary)
		}
	}

	if err := r.state.Save(); err != nil {
		r.logger.Warn("failed to save state", "error", err)
	}

	r.publish(hermes.SubjectRunCompleted, hermes.RunCompletedEvent{
		RunID:     r.state.RunID,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	})

	r.logger.Info("organize complete",
		"batches", summary.Batches,
		"conversations", summary.Conversations,
		"turns", summary.Turns,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Runner) foldFile(f BatchFile) BatchResult {
	res := BatchResult{File: f}

	batch, skipped, err := ReadBatchFile(f)
	res.SkippedLines = skipped
	if err != nil {
		res.Err = err
		return res
	}

	conv, rep, err := r.engine.Process(batch)
	res.Conversation = conv
	res.Report = rep
	res.Err = err
	return res
}

func (r *Runner) emit(ctx context.Context, res BatchResult, summary *report.Summary) {
	f := res.File
	summary.AddDiagnostics(len(res.SkippedLines), res.Report)
	defer func() {
		r.state.FilesRemaining--
		if err := r.state.Save(); err != nil {
			r.logger.Warn("failed to save state", "error", err)
		}
	}()

	for _, line := range res.SkippedLines {
		r.logger.Warn("skipping undecodable line", "path", f.Path, "line", line)
	}

	if res.Err != nil {
		r.logger.Warn("failed to fold batch", "path", f.Path, "error", res.Err)
		r.state.AddError(fmt.Sprintf("fold %s: %v", f.Path, res.Err))
		summary.AddFailure(f.PathID)
		return
	}

	if res.Conversation == nil {
		r.logger.Debug("batch produced no conversation", "path", f.Path, "records", res.Report.Records)
		summary.AddEmpty(f.PathID)
		r.state.MarkProcessed(f.Path)
		return
	}

	if err := r.sink.Append(ctx, res.Conversation); err != nil {
		r.logger.Error("failed to write conversation", "path", f.Path, "error", err)
		r.state.AddError(fmt.Sprintf("write %s: %v", f.Path, err))
		summary.AddFailure(f.PathID)
		return
	}

	conv := res.Conversation
	summary.AddConversation(conv)
	r.state.MarkProcessed(f.Path)
	r.state.ConversationsWritten++
	r.state.TurnsWritten += len(conv.Turns)

	r.logger.Info("batch folded",
		"path_id", f.PathID,
		"batch_id", f.BatchID,
		"records", res.Report.Records,
		"ordered", res.Report.Ordered,
		"turns", len(conv.Turns),
	)

	r.publish(hermes.SubjectBatchFolded, hermes.BatchFoldedEvent{
		RunID:     r.state.RunID,
		PathID:    f.PathID,
		BatchID:   f.BatchID,
		Turns:     len(conv.Turns),
		Models:    conv.Metadata.Models,
		Timestamp: conv.Metadata.Timestamp,
		Dropped:   res.Report.Structural(),
	})
}

func (r *Runner) publish(subject string, data any) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (r *Runner) discoverFiles() ([]BatchFile, error) {
	if r.cfg.SingleFile != "" {
		f, err := SingleFile(r.cfg.SingleFile)
		if err != nil {
			return nil, err
		}
		return []BatchFile{f}, nil
	}
	return DiscoverFiles(r.cfg.ClaudeDir)
}
