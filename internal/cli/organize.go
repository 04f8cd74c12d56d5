package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MikeSquared-Agency/threadfold/internal/backfill"
	"github.com/MikeSquared-Agency/threadfold/internal/config"
	"github.com/MikeSquared-Agency/threadfold/internal/report"
)

func organizeCommand() *cli.Command {
	var (
		o          = newOptions()
		singleFile string
		resume     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "claude-dir",
			Usage:       "Directory containing projects/<path_id>/*.jsonl",
			Value:       o.ClaudeDir,
			Sources:     cli.EnvVars("THREADFOLD_CLAUDE_DIR"),
			Destination: &o.ClaudeDir,
		},
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "Fold a single session log instead of the whole tree",
			Destination: &singleFile,
		},
		&cli.BoolFlag{
			Name:        "resume",
			Usage:       "Skip logs recorded in the state file and append to the output",
			Destination: &resume,
		},
		&cli.StringFlag{
			Name:        "state",
			Usage:       "Run state file",
			Value:       o.StatePath,
			Sources:     cli.EnvVars("THREADFOLD_STATE_PATH"),
			Destination: &o.StatePath,
		},
		&cli.IntFlag{
			Name:        "workers",
			Aliases:     []string{"w"},
			Usage:       "Batches folded concurrently",
			Value:       o.workers,
			Sources:     cli.EnvVars("THREADFOLD_WORKERS"),
			Destination: &o.workers,
		},
	}
	flags = append(flags, globalFlags(o)...)
	flags = append(flags, engineFlags(o)...)
	flags = append(flags, sinkFlags(o)...)
	flags = append(flags, natsFlags(o)...)

	return &cli.Command{
		Name:  "organize",
		Usage: "Fold every session log under the Claude directory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := o.newLogger()

			engine, err := o.newEngine(logger)
			if err != nil {
				return err
			}

			sink, output, err := o.newSink(ctx, resume)
			if err != nil {
				return err
			}
			defer closeSink(sink, logger)

			bus, err := o.newBus(ctx, logger)
			if err != nil {
				return err
			}
			var events backfill.Publisher
			if bus != nil {
				defer bus.Close()
				events = bus
			}

			runID := uuid.NewString()
			statePath := config.ExpandHome(o.StatePath)
			var state *backfill.RunState
			if resume {
				if state, err = backfill.LoadState(statePath, runID); err != nil {
					return err
				}
			} else {
				state = backfill.NewState(statePath, runID)
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := backfill.NewRunner(backfill.Config{
				ClaudeDir:  config.ExpandHome(o.ClaudeDir),
				SingleFile: singleFile,
				Resume:     resume,
				Workers:    int(o.workers),
				Output:     output,
			}, engine, sink, events, state, logger)

			summary, err := runner.Run(ctx)
			if summary != nil && summary.Batches > 0 {
				if rerr := report.Render(c.Root().Writer, summary); rerr != nil {
					logger.Warn("failed to render summary", "error", rerr)
				}
			}
			if err != nil {
				return goerr.Wrap(err, "organize failed")
			}
			if bus != nil {
				if err := bus.Flush(); err != nil {
					logger.Warn("failed to flush events", "error", err)
				}
			}
			return nil
		},
	}
}
