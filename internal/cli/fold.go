package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

func foldCommand() *cli.Command {
	var (
		o       = newOptions()
		pathID  string
		batchID string
		pretty  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "path-id",
			Usage:       "Path id recorded in the metadata (defaults to the parent directory name)",
			Destination: &pathID,
		},
		&cli.StringFlag{
			Name:        "batch-id",
			Usage:       "Batch id recorded in the metadata (defaults to the file name)",
			Destination: &batchID,
		},
		&cli.BoolFlag{
			Name:        "pretty",
			Usage:       "Indent the output",
			Destination: &pretty,
		},
	}
	flags = append(flags, globalFlags(o)...)
	flags = append(flags, engineFlags(o)...)

	return &cli.Command{
		Name:      "fold",
		Usage:     "Fold one batch (JSONL or a JSON array, - for stdin) and print the conversation",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("fold takes exactly one file argument")
			}
			path := c.Args().First()
			logger := o.newLogger()

			engine, err := o.newEngine(logger)
			if err != nil {
				return err
			}

			in, done, err := stdinOrFile(path)
			if err != nil {
				return err
			}
			defer done()

			records, err := readRecords(in)
			if err != nil {
				return goerr.Wrap(err, "failed to read batch", goerr.V("path", path))
			}

			batch := thread.Batch{PathID: pathID, BatchID: batchID, Records: records}
			if path != "-" {
				if batch.PathID == "" {
					batch.PathID = filepath.Base(filepath.Dir(path))
				}
				if batch.BatchID == "" {
					batch.BatchID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}
			}

			conv, rep, err := engine.Process(batch)
			if err != nil {
				return err
			}
			if n := rep.Structural(); n > 0 {
				logger.Warn("records left out of traversal", "count", n)
			}
			if conv == nil {
				logger.Info("batch produced no conversation", "records", rep.Records)
				return nil
			}

			enc := json.NewEncoder(c.Root().Writer)
			enc.SetEscapeHTML(false)
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(conv)
		},
	}
}

// readRecords accepts either a JSON array of records or one record per line.
func readRecords(r io.Reader) ([]thread.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "read input")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return thread.ParseBatch(trimmed)
	}

	var raws []json.RawMessage
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		raws = append(raws, json.RawMessage(line))
	}
	return thread.DecodeRecords(raws), nil
}
