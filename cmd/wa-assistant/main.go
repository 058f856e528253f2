package main

import (
	"log/slog"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/dwizi/wa-assistant/internal/cli"
)

// Logs go to stderr; stdout carries the outbound message stream.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(os.Getenv("WA_ASSISTANT_LOG_LEVEL"))}))
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func logLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
