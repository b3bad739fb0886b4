package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog logger and returns a function that closes the log file.
// Console output goes to stderr so that listings on stdout stay clean.
// If logOutputDir is non-empty, logs are also written as JSON to a timestamped file in that directory.
func Setup(levelStr string, logOutputDir string) (func() error, error) {
	logger, logFilePath, closeFn, err := New(os.Stderr, levelStr, logOutputDir)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	if logFilePath != "" {
		fmt.Fprintf(os.Stderr, "Logging to file: %s\n", logFilePath)
	}

	return closeFn, nil
}

// New builds a logger writing to w and, when logOutputDir is set, to a JSON log file.
// It returns the log file path, or an empty string when no file is used, and a
// close function releasing the file. The close function is a no-op without a file.
func New(w io.Writer, levelStr string, logOutputDir string) (*slog.Logger, string, func() error, error) {
	level := ParseLevel(levelStr)

	consoleHandler := tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})

	if logOutputDir == "" {
		return slog.New(consoleHandler), "", func() error { return nil }, nil
	}

	logDir := os.ExpandEnv(logOutputDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("failed to create log output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("qutils_%s.log", timestamp))

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})

	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), logFilePath, logFile.Close, nil
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
