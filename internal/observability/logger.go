// Package observability defines shared logging primitives.
package observability

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger adapts the standard library logger to the Logger interface.
type StdLogger struct {
	logger  *log.Logger
	verbose bool
}

// NewStdLogger constructs a StdLogger writing to stderr with the given prefix.
func NewStdLogger(prefix string, verbose bool) *StdLogger {
	return &StdLogger{
		logger:  log.New(os.Stderr, prefix, log.LstdFlags),
		verbose: verbose,
	}
}

// Debug logs a debug-level message when verbose mode is enabled.
func (l *StdLogger) Debug(msg string, fields ...Field) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s%s", msg, renderFields(fields))
}

// Info logs an informational message.
func (l *StdLogger) Info(msg string, fields ...Field) {
	l.logger.Printf("INFO %s%s", msg, renderFields(fields))
}

// Error logs an error message.
func (l *StdLogger) Error(msg string, fields ...Field) {
	l.logger.Printf("ERROR %s%s", msg, renderFields(fields))
}

func renderFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
