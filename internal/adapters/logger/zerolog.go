package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZeroLogger implements the ports.Logger interface on top of zerolog,
// emitting structured JSON to stderr.
type ZeroLogger struct {
	logger zerolog.Logger
}

// ParseLevel converts a string level to a zerolog level. Unknown strings
// default to Info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a zerolog-backed logger at the given level.
func New(level zerolog.Level) *ZeroLogger {
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return &ZeroLogger{logger: zl}
}

// NewWithOutput is New with an explicit writer; used by tests to capture output.
func NewWithOutput(level zerolog.Level, w io.Writer) *ZeroLogger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &ZeroLogger{logger: zl}
}

func withFields(ev *zerolog.Event, fields []map[string]interface{}) *zerolog.Event {
	for _, m := range fields {
		ev = ev.Fields(m)
	}
	return ev
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.logger.Debug(), fields).Msg(msg)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.logger.Info(), fields).Msg(msg)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.logger.Warn(), fields).Msg(msg)
}

// Error logs an error with a message at Error level.
func (l *ZeroLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	withFields(l.logger.Error().Err(err), fields).Msg(msg)
}
