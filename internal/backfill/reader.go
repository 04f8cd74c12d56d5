package backfill

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

const maxLineSize = 64 * 1024 * 1024

// ReadBatchFile loads a JSONL session log as one batch. Blank lines are
// ignored; lines that are not valid JSON are skipped and their 1-based line
// numbers returned, so one bad line never loses the rest of the file.
func ReadBatchFile(f BatchFile) (thread.Batch, []int, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return thread.Batch{}, nil, goerr.Wrap(err, "failed to open batch file", goerr.V("path", f.Path))
	}
	defer file.Close()

	var (
		raws    []json.RawMessage
		skipped []int
		lineNo  int
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineSize)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped = append(skipped, lineNo)
			continue
		}
		raws = append(raws, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return thread.Batch{}, skipped, goerr.Wrap(err, "failed to scan batch file", goerr.V("path", f.Path))
	}

	return thread.Batch{
		PathID:  f.PathID,
		BatchID: f.BatchID,
		Records: thread.DecodeRecords(raws),
	}, skipped, nil
}
