package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogOptions configures SetupSlog. Empty fields fall back to the
// NESTREE_LOG_LEVEL, NESTREE_LOG_FMT and NESTREE_LOG_FILE environment
// variables, then to info level text on stdout.
type LogOptions struct {
	// "" or "-" is stdout
	LogPath string

	// text|json
	LogFormat string

	// debug|info|warn|error
	LogLevel string
}

var logLevels = map[string]slog.Level{
	"":      slog.LevelInfo,
	"info":  slog.LevelInfo,
	"debug": slog.LevelDebug,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func orEnv(v string, names ...string) string {
	if v != "" {
		return v
	}
	for _, n := range names {
		if e := os.Getenv(n); e != "" {
			return e
		}
	}
	return ""
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func logOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// SetupSlog builds a logger from options and installs it as the slog
// default. The zero LogOptions is valid. The returned Closer releases the
// log file, if any; closing stdout output is a no-op. Callers should close
// it only once nothing logs through the logger anymore.
func SetupSlog(options LogOptions) (*slog.Logger, io.Closer, error) {
	levelName := strings.ToLower(orEnv(options.LogLevel, "NESTREE_LOG_LEVEL", "GOLOG_LOG_LEVEL"))
	level, ok := logLevels[levelName]
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level: %q", levelName)
	}
	hopts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}

	format := strings.ToLower(orEnv(options.LogFormat, "NESTREE_LOG_FMT", "GOLOG_LOG_FMT"))
	if format != "" && format != "text" && format != "json" {
		return nil, nil, fmt.Errorf("invalid log format: %q", format)
	}

	out, err := logOutput(orEnv(options.LogPath, "NESTREE_LOG_FILE"))
	if err != nil {
		return nil, nil, err
	}

	var handler slog.Handler = slog.NewTextHandler(out, hopts)
	if format == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, out, nil
}
