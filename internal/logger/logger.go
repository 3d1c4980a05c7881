package logger

import (
	"io"
	"log"
	"os"
)

// Logger defines the Roastify logging contract.
// Implementations should support standard log levels and be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// StdLogger wraps Go's standard logger to implement the Roastify logging contract.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger creates a new StdLogger writing to stdout.
func NewStdLogger() *StdLogger {
	return New(os.Stdout, false)
}

// New creates a StdLogger writing to w. Debug lines are dropped unless debug is set.
func New(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		debug:  debug,
	}
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	if !l.debug {
		return
	}
	l.logger.Printf("[DEBUG] "+msg, args...)
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return New(io.Discard, false)
}

// Default provides a global default logger instance using Go's standard logger.
var Default Logger = NewStdLogger()
