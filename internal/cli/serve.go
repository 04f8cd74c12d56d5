package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/MikeSquared-Agency/threadfold/internal/api"
	"github.com/MikeSquared-Agency/threadfold/internal/backfill"
	"github.com/MikeSquared-Agency/threadfold/internal/hermes"
	"github.com/MikeSquared-Agency/threadfold/internal/processor"
)

func serveCommand() *cli.Command {
	o := newOptions()

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "port",
			Aliases:     []string{"p"},
			Usage:       "HTTP port",
			Value:       o.port,
			Sources:     cli.EnvVars("THREADFOLD_PORT"),
			Destination: &o.port,
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Bearer token required on /api/v1 (disabled when empty)",
			Value:       o.APIToken,
			Sources:     cli.EnvVars("THREADFOLD_API_TOKEN"),
			Destination: &o.APIToken,
		},
	}
	flags = append(flags, globalFlags(o)...)
	flags = append(flags, engineFlags(o)...)
	flags = append(flags, sinkFlags(o)...)
	flags = append(flags, natsFlags(o)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the fold API and consume batches from NATS",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := o.newLogger()
			logger.Info("threadfold starting", "port", o.port, "strict", o.Strict)

			engine, err := o.newEngine(logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus, err := o.newBus(ctx, logger)
			if err != nil {
				return err
			}

			var stats api.StatsSource
			if bus != nil {
				sink, output, err := o.newSink(ctx, true)
				if err != nil {
					bus.Close()
					return err
				}
				defer stopConsumer(bus, sink, logger)

				proc := processor.New(engine, sink, bus, logger)
				if err := bus.Subscribe(hermes.SubjectBatchSubmitted, proc.HandleBatchSubmitted); err != nil {
					return err
				}
				stats = proc
				logger.Info("consuming batches", "subject", hermes.SubjectBatchSubmitted, "sink", output)
			} else {
				logger.Warn("NATS not configured, serving the HTTP API only")
			}

			srv := api.NewServer(int(o.port), o.APIToken, engine, stats, logger)
			err = srv.Start(ctx)
			logger.Info("threadfold stopped")
			return err
		},
	}
}

// stopConsumer closes the bus before the sink, so a handler still folding a
// batch can finish its append before the sink goes away.
func stopConsumer(bus interface{ Close() }, sink backfill.Sink, logger *slog.Logger) {
	bus.Close()
	closeSink(sink, logger)
}
