package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MikeSquared-Agency/threadfold/internal/backfill"
	"github.com/MikeSquared-Agency/threadfold/internal/config"
	"github.com/MikeSquared-Agency/threadfold/internal/hermes"
	"github.com/MikeSquared-Agency/threadfold/internal/jsonl"
	"github.com/MikeSquared-Agency/threadfold/internal/logging"
	"github.com/MikeSquared-Agency/threadfold/internal/store"
	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

// options starts from the environment and is overridden by flags.
type options struct {
	config.Config
	workers int64
	port    int64
}

func newOptions() *options {
	cfg := config.Load()
	return &options{
		Config:  cfg,
		workers: int64(cfg.Workers),
		port:    int64(cfg.Port),
	}
}

func globalFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       o.LogLevel,
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &o.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       o.LogFormat,
			Sources:     cli.EnvVars("LOG_FORMAT"),
			Destination: &o.LogFormat,
		},
	}
}

func engineFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "seed",
			Usage:       "YAML seed turn, or a previous export whose last conversation's first turn is reused",
			Value:       o.SeedFile,
			Sources:     cli.EnvVars("THREADFOLD_SEED_FILE"),
			Destination: &o.SeedFile,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "Reject batches with records outside every tree",
			Value:       o.Strict,
			Sources:     cli.EnvVars("THREADFOLD_STRICT"),
			Destination: &o.Strict,
		},
	}
}

func sinkFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sink",
			Usage:       "Where conversations go (jsonl, postgres, sqlite)",
			Value:       o.Sink,
			Sources:     cli.EnvVars("THREADFOLD_SINK"),
			Destination: &o.Sink,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "JSONL output path",
			Value:       o.OutputPath,
			Sources:     cli.EnvVars("THREADFOLD_OUTPUT"),
			Destination: &o.OutputPath,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "Postgres connection string for the postgres sink",
			Value:       o.DatabaseURL,
			Sources:     cli.EnvVars("DATABASE_URL"),
			Destination: &o.DatabaseURL,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Database file for the sqlite sink",
			Value:       o.SQLitePath,
			Sources:     cli.EnvVars("SQLITE_PATH"),
			Destination: &o.SQLitePath,
		},
	}
}

func natsFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "nats-url",
			Usage:       "NATS server for batch events (disabled when empty)",
			Value:       o.NatsURL,
			Sources:     cli.EnvVars("NATS_URL"),
			Destination: &o.NatsURL,
		},
		&cli.StringFlag{
			Name:        "nats-token",
			Usage:       "NATS auth token",
			Value:       o.NatsToken,
			Sources:     cli.EnvVars("NATS_TOKEN"),
			Destination: &o.NatsToken,
		},
	}
}

func (o *options) newLogger() *slog.Logger {
	return logging.Setup(o.LogLevel, o.LogFormat)
}

func (o *options) newEngine(logger *slog.Logger) (*thread.Engine, error) {
	seed, err := config.LoadSeed(o.SeedFile)
	if err != nil {
		return nil, err
	}
	return thread.NewEngine(seed, thread.Options{Strict: o.Strict}, logger), nil
}

// newSink opens the configured sink and returns a label for the summary.
func (o *options) newSink(ctx context.Context, appendMode bool) (backfill.Sink, string, error) {
	switch o.Sink {
	case "", "jsonl":
		path := config.ExpandHome(o.OutputPath)
		w, err := jsonl.Create(path, appendMode)
		if err != nil {
			return nil, "", err
		}
		return w, path, nil

	case "postgres":
		if o.DatabaseURL == "" {
			return nil, "", goerr.New("DATABASE_URL is required for the postgres sink")
		}
		db, err := store.New(ctx, o.DatabaseURL)
		if err != nil {
			return nil, "", err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, "", err
		}
		return db, "postgres:conversations", nil

	case "sqlite":
		path := o.SQLitePath
		if path == "" {
			path = "threadfold.db"
		}
		path = config.ExpandHome(path)
		db, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return nil, "", err
		}
		return db, "sqlite:" + path, nil
	}
	return nil, "", goerr.New("unknown sink", goerr.V("sink", o.Sink))
}

// newBus connects to NATS when a URL is configured. A nil client means
// events are disabled.
func (o *options) newBus(ctx context.Context, logger *slog.Logger) (*hermes.Client, error) {
	if o.NatsURL == "" {
		return nil, nil
	}
	client, err := hermes.NewClient(ctx, o.NatsURL, o.NatsToken, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("NATS connected", "url", o.NatsURL)
	return client, nil
}

func closeSink(sink backfill.Sink, logger *slog.Logger) {
	if err := sink.Close(); err != nil {
		logger.Warn("failed to close sink", "error", err)
	}
}

func stdinOrFile(path string) (*os.File, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open input", goerr.V("path", path))
	}
	return f, func() { f.Close() }, nil
}
