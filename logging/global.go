// Package logging wires log/slog for the indicator harvester: console output plus
// a weekly rotating JSON file, reachable through package-level helpers.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

type LoggingService struct {
	Logger  *slog.Logger
	rotator *RotatingLogger
}

var DefaultLoggingService *LoggingService

// Options controls where and how much the logger writes
type Options struct {
	Dir            string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
}

// InitLogger initializes the global logger instance with default retention
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{Dir: logDir, Level: "info", RetentionWeeks: 4})
}

// InitLoggerWithOptions initializes the global logger and makes it the slog default
func InitLoggerWithOptions(opts Options) {
	logger, rotator := SetupLogger(opts)
	DefaultLoggingService = &LoggingService{
		Logger:  logger,
		rotator: rotator,
	}
	slog.SetDefault(logger)
}

// Close flushes and closes the log file, if any
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.rotator == nil {
		return nil
	}
	return DefaultLoggingService.rotator.Close()
}

// parseLogLevel maps LOG_LEVEL values to slog levels, defaulting to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func logger(level slog.Level) *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to console logger if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger(slog.LevelDebug).Debug(msg, args...)
}

// With returns a logger carrying the given attributes, e.g. a run id
func With(args ...any) *slog.Logger {
	return logger(slog.LevelInfo).With(args...)
}
