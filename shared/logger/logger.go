package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds logger configuration. Any Format other than console (the
// default) produces JSON.
type Config struct {
	Level        string // debug, info, warn, error
	Format       string // console, json
	Output       string // stdout, stderr or a file path, appended to
	EnableSource bool
	TimeFormat   string // console only
	NoColor      bool

	writer io.Writer // overrides Output in tests
}

// Logger wraps slog.Logger and owns the log file, if Output named one.
// Child loggers share the file; close only the root.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a tint console or JSON logger
func New(config *Config) (*Logger, error) {
	level := parseLevel(config.Level)

	var (
		writer io.Writer
		file   *os.File
	)
	switch {
	case config.writer != nil:
		writer = config.writer
	case config.Output == "stderr":
		writer = os.Stderr
	case config.Output == "stdout" || config.Output == "":
		writer = os.Stdout
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer, file = f, f
	}

	var handler slog.Handler
	if config.Format == "console" || config.Format == "" {
		timeFormat := config.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		// tint writes ANSI colors unless told otherwise; log files get plain text
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			AddSource:  config.EnableSource,
			TimeFormat: timeFormat,
			NoColor:    config.NoColor || file != nil,
		})
	} else {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.EnableSource,
		})
	}

	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// parseLevel maps a level name to slog.Level, case-insensitively. Unknown
// names log at info.
func parseLevel(level string) slog.Level {
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

func (l *Logger) child(sl *slog.Logger) *Logger {
	return &Logger{Logger: sl, file: l.file}
}

// WithAttrs returns a child logger that writes to the same output
func (l *Logger) WithAttrs(attrs ...slog.Attr) *Logger {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return l.With(args...)
}

func (l *Logger) With(args ...any) *Logger {
	return l.child(l.Logger.With(args...))
}
