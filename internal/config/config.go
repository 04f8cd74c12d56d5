package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        int
	LogLevel    string
	LogFormat   string
	ClaudeDir   string
	OutputPath  string
	SeedFile    string
	StatePath   string
	Strict      bool
	Workers     int
	Sink        string
	DatabaseURL string
	SQLitePath  string
	NatsURL     string
	NatsToken   string
	APIToken    string
}

func Load() Config {
	return Config{
		Port:        envInt("THREADFOLD_PORT", 8760),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogFormat:   envStr("LOG_FORMAT", "console"),
		ClaudeDir:   envStr("THREADFOLD_CLAUDE_DIR", "~/.claude"),
		OutputPath:  envStr("THREADFOLD_OUTPUT", "organized_projects.jsonl"),
		SeedFile:    envStr("THREADFOLD_SEED_FILE", ""),
		StatePath:   envStr("THREADFOLD_STATE_PATH", "~/.threadfold/state.json"),
		Strict:      envBool("THREADFOLD_STRICT", false),
		Workers:     envInt("THREADFOLD_WORKERS", 4),
		Sink:        envStr("THREADFOLD_SINK", "jsonl"),
		DatabaseURL: envStr("DATABASE_URL", ""),
		SQLitePath:  envStr("SQLITE_PATH", ""),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		APIToken:    envStr("THREADFOLD_API_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
