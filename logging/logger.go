// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers OracleLogger with contextual helpers
// (component, session) and helpers for sub-task runs and streams.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts debug, info, warn or error (case insensitive) into a
// LogLevel. An empty string yields LogLevelInfo.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used across the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// OracleLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. Copies are cheap via the With* methods.
type OracleLogger struct {
	logger     *slog.Logger
	level      LogLevel
	context    map[string]any
	component  string
	sessionID  string
	sessionKey string
}

// LoggerConfig configures construction of an OracleLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds an OracleLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *OracleLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &OracleLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component}
}

// NewSlogLogger creates a new OracleLogger with the specified level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *OracleLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *OracleLogger) clone() *OracleLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *OracleLogger) WithContext(key string, value any) *OracleLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (engine, session, orchestrator, ...).
func (l *OracleLogger) WithComponent(c string) *OracleLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches the session identifier and its key.
func (l *OracleLogger) WithSession(id, key string) *OracleLogger {
	nl := l.clone()
	nl.sessionID = id
	nl.sessionKey = key
	return nl
}

func (l *OracleLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.sessionKey != "" {
		attrs = append(attrs, slog.String("session_key", l.sessionKey))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *OracleLogger) log(level slog.Level, msg string, args ...any) {
	if slogLevel(l.level) > level {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *OracleLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *OracleLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *OracleLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *OracleLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogTaskRun records the outcome of one sub-task run.
func (l *OracleLogger) LogTaskRun(kind string, dur time.Duration, success bool, err error) {
	args := []any{"task", kind, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if !success {
		l.log(slog.LevelWarn, "task.run.failed", args...)
		return
	}
	l.log(slog.LevelInfo, "task.run.complete", args...)
}

// LogStream records the terminal state of a stream session.
func (l *OracleLogger) LogStream(mode, terminal string, textBytes int, dur time.Duration, err error) {
	args := []any{"mode", mode, "terminal", terminal, "text_bytes", textBytes, "duration", dur}
	if err != nil {
		args = append(args, "error", err.Error())
		l.log(slog.LevelError, "session.terminal", args...)
		return
	}
	l.log(slog.LevelInfo, "session.terminal", args...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *OracleLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Debug("operation.complete", "operation", op, "duration", time.Since(start)) }
}

// TaskRunLogger is implemented by loggers with a dedicated sub-task record.
type TaskRunLogger interface {
	LogTaskRun(kind string, dur time.Duration, success bool, err error)
}

// StreamLogger is implemented by loggers with a dedicated session terminal record.
type StreamLogger interface {
	LogStream(mode, terminal string, textBytes int, dur time.Duration, err error)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*OracleLogger)(nil)
	_ Logger = NoOpLogger{}
)
