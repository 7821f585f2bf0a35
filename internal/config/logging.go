package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// ParseLogLevel converts a level name into a slog level. "warning" is
// accepted for warn.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case LogLevelDebug:
		return slog.LevelDebug, nil
	case LogLevelInfo, "":
		return slog.LevelInfo, nil
	case LogLevelWarn, "warning":
		return slog.LevelWarn, nil
	case LogLevelError:
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", raw)
}

// ParseLogFormat normalizes a log format name.
func ParseLogFormat(raw string) (LogFormat, error) {
	switch f := LogFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case LogFormatJSON, LogFormatText:
		return f, nil
	case "":
		return LogFormatText, nil
	}
	return LogFormatText, fmt.Errorf("unknown log format %q (expected text or json)", raw)
}
