package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// debug, info, warn, error
	LogLevel string
	// text or json
	LogFormat string
	// file path; empty or "-" for stdout
	LogPath string
}

func firstenv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %#v", s)
	}
}

// Builds the process logger from options, falling back to the
// TWEETOR_LOG_LEVEL, TWEETOR_LOG_FMT and TWEETOR_LOG_FILE env vars, and
// installs it as the slog default.
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	if options.LogLevel == "" {
		options.LogLevel = firstenv("TWEETOR_LOG_LEVEL")
	}
	if options.LogFormat == "" {
		options.LogFormat = firstenv("TWEETOR_LOG_FMT")
	}
	if options.LogPath == "" {
		options.LogPath = firstenv("TWEETOR_LOG_FILE")
	}

	level, err := ParseLevel(options.LogLevel)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if options.LogPath != "" && options.LogPath != "-" {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
	}

	logger, err := NewLogger(out, level, options.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func NewLogger(out io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %#v", format)
	}
}
