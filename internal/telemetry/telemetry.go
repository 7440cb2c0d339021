// Package telemetry sets up process-level structured diagnostic logging.
// This is deliberately separate from the exchange's own deterministic
// domain logs (processed_events, processed_trades, per-client execution
// reports), which internal/logexec writes in its own append-only format —
// telemetry is for operational visibility (connects, disconnects,
// backpressure warnings, fatal aborts), not for replaying the book.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rishav/lob-engine/internal/config"
)

// New builds a slog.Logger that writes JSON lines to both stdout and a
// rotating file under cfg.Logging.Dir.
func New(cfg *config.Config) *slog.Logger {
	dir := cfg.Logging.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "exchange.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, rotating)

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
}
