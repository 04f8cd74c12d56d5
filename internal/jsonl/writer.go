package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// Writer appends one conversation per line. Each Append is flushed before it
// returns so a completed batch survives an interrupted run.
type Writer struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewWriter wraps w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{bw: bw, enc: enc}
}

// Create opens path for writing. With appendMode the file is extended,
// otherwise it is truncated.
func Create(path string, appendMode bool) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open output", goerr.V("path", path))
	}

	w := NewWriter(f)
	w.closer = f
	return w, nil
}

func (w *Writer) Append(_ context.Context, conv *thread.Conversation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(conv); err != nil {
		return goerr.Wrap(err, "failed to encode conversation",
			goerr.V("path_id", conv.Metadata.PathID),
			goerr.V("batch_id", conv.Metadata.BatchID),
		)
	}
	if err := w.bw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to flush conversation")
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.bw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to flush output")
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
