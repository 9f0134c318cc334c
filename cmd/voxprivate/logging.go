package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/MrWong99/voxprivate/internal/config"
)

// newLogger builds the process logger. The console gets tinted output when
// stderr is a terminal. When logging.file is set and logging is enabled,
// records are also appended to that file as JSON. Both sinks follow levels.
func newLogger(lc config.LoggingConfig, levels *slog.LevelVar) (*slog.Logger, func(), error) {
	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      levels,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(os.Stderr),
	})
	if !lc.Enabled || lc.File == "" {
		return slog.New(console), func() {}, nil
	}

	f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: levels})
	return slog.New(slog.NewMultiHandler(console, file)), func() { _ = f.Close() }, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
