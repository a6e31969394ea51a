package pkg

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Instrument component identifiers.
const (
	ComponentEngine    Component = "engine"
	ComponentDispatch  Component = "dispatch"
	ComponentHAL       Component = "hal"
	ComponentTransport Component = "transport"
	ComponentBridge    Component = "bridge"
	ComponentDiag      Component = "diag"
	ComponentConfig    Component = "config"
	ComponentScript    Component = "script"
	ComponentCLI       Component = "cli"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

// String returns the configuration name of the format.
func (f LogFormat) String() string {
	if f == LogFormatJSON {
		return "json"
	}
	return "text"
}

var (
	// DefaultLogger is the default logger used by every package in the module.
	DefaultLogger *slog.Logger

	// logLevel controls the minimum log level.
	logLevel = new(slog.LevelVar)

	// logOutput is where SetLogFormat points new handlers.
	logOutput io.Writer = os.Stderr

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, ErrInvalidParameter)
	}
}

// ParseLogFormat converts a format name (text, json) to a LogFormat.
func ParseLogFormat(name string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	default:
		return LogFormatText, fmt.Errorf("log format %q: %w", name, ErrInvalidParameter)
	}
}

// SetLogLevel sets the minimum log level for all logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogOutput redirects the handlers created by SetLogFormat.
// The current logger is rebuilt in text format on the new writer.
func SetLogOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOutput = w
	DefaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to the configured output (os.Stderr unless changed with
// SetLogOutput) and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case LogFormatJSON:
		DefaultLogger = slog.New(slog.NewJSONHandler(logOutput, opts))
	default:
		DefaultLogger = slog.New(slog.NewTextHandler(logOutput, opts))
	}
}

// NewLogger creates a new text logger writing to the given writer.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logger().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logger().Info(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logger().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logger().Error(msg, append([]any{"component", string(component)}, args...)...)
}
