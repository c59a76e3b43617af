// Package zerolog adapts the zerolog library to the domain logging contract.
// This is in external-adapters to isolate the external dependency.
package zerolog

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// Logger implements interfaces.Logger on top of a zerolog.Logger.
type Logger struct {
	log zerolog.Logger
}

// New creates a logger writing structured JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{log: zerolog.New(w).With().Timestamp().Logger()}
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

// Debug logs debug-level messages
func (l *Logger) Debug(msg string, fields ...interfaces.Field) {
	l.emit(l.log.Debug(), msg, fields)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields ...interfaces.Field) {
	l.emit(l.log.Info(), msg, fields)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields ...interfaces.Field) {
	l.emit(l.log.Warn(), msg, fields)
}

// Error logs error-level messages
func (l *Logger) Error(msg string, fields ...interfaces.Field) {
	l.emit(l.log.Error(), msg, fields)
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []interfaces.Field) {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}
