package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/threadfold/internal/backfill"
	"github.com/MikeSquared-Agency/threadfold/internal/hermes"
	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// Stats counts batches handled since startup.
type Stats struct {
	Received    int       `json:"received"`
	Folded      int       `json:"folded"`
	Empty       int       `json:"empty"`
	Failed      int       `json:"failed"`
	LastBatchAt time.Time `json:"last_batch_at,omitempty"`
}

// Processor folds batches submitted over the bus and writes them to a sink.
type Processor struct {
	engine *thread.Engine
	sink   backfill.Sink
	events backfill.Publisher
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a processor. events may be nil.
func New(engine *thread.Engine, sink backfill.Sink, events backfill.Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		engine: engine,
		sink:   sink,
		events: events,
		logger: logger,
	}
}

// HandleBatchSubmitted is the NATS handler for threadfold.batch.submitted.
func (p *Processor) HandleBatchSubmitted(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.BatchSubmittedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse batch event", "subject", subject, "error", err)
		p.record(func(s *Stats) { s.Received++; s.Failed++ })
		return
	}

	p.logger.Info("processing batch",
		"path_id", evt.PathID,
		"batch_id", evt.BatchID,
		"records", len(evt.Records),
	)

	batch := thread.Batch{
		PathID:  evt.PathID,
		BatchID: evt.BatchID,
		Records: thread.DecodeRecords(evt.Records),
	}

	conv, rep, err := p.engine.Process(batch)
	if err != nil {
		p.logger.Warn("batch rejected", "batch_id", evt.BatchID, "error", err)
		p.record(func(s *Stats) { s.Received++; s.Failed++ })
		return
	}
	if conv == nil {
		p.logger.Debug("batch produced no conversation", "batch_id", evt.BatchID)
		p.record(func(s *Stats) { s.Received++; s.Empty++ })
		return
	}

	if err := p.sink.Append(ctx, conv); err != nil {
		p.logger.Error("failed to write conversation", "batch_id", evt.BatchID, "error", err)
		p.record(func(s *Stats) { s.Received++; s.Failed++ })
		return
	}
	p.record(func(s *Stats) { s.Received++; s.Folded++ })

	if p.events == nil {
		return
	}
	err = p.events.Publish(hermes.SubjectBatchFolded, hermes.BatchFoldedEvent{
		PathID:    evt.PathID,
		BatchID:   evt.BatchID,
		Turns:     len(conv.Turns),
		Models:    conv.Metadata.Models,
		Timestamp: conv.Metadata.Timestamp,
		Dropped:   rep.Structural(),
	})
	if err != nil {
		p.logger.Warn("failed to publish folded event", "batch_id", evt.BatchID, "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Processor) record(update func(*Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.stats)
	p.stats.LastBatchAt = time.Now().UTC()
}
