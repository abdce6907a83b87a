package wireghost

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the pluggable logging seam every package in this module
// writes diagnostics through, mirroring the teacher library's
// SetLogger/getLogger pattern but with structured fields instead of
// printf-style strings, to match the rest of the example corpus.
type Logger interface {
	SetOutput(output io.Writer)
	// Error logs a failure with structured context. err may be nil when
	// there is no underlying error (e.g. an unmapped protocol version).
	Error(msg string, err error, fields map[string]any)
	Info(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

var activeLogger Logger

func getLogger() Logger {
	if activeLogger == nil {
		SetLogger(newZerologLogger())
	}
	return activeLogger
}

// SetLogger installs a custom Logger for the whole process. Call this
// before constructing a Dispatch if you want diagnostics routed
// somewhere other than the default zerolog console writer.
func SetLogger(logger Logger) {
	activeLogger = logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

func newZerologLogger() *zerologLogger {
	return &zerologLogger{logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()}
}

func (l *zerologLogger) SetOutput(output io.Writer) {
	l.logger = l.logger.Output(output)
}

func (l *zerologLogger) Error(msg string, err error, fields map[string]any) {
	ev := l.logger.Error().Err(err)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *zerologLogger) Info(msg string, fields map[string]any) {
	ev := l.logger.Info()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields map[string]any) {
	ev := l.logger.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
