// Package admission provides logging hooks.
package admission

import (
	"encoding/json"
	"io"
	"log"
	"os"
)

// Logger provides structured logging hooks. All components tolerate a nil
// logger.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// StdLogger writes JSON lines to an io.Writer.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger constructs a StdLogger. A nil writer logs to stderr.
func NewStdLogger(w io.Writer) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{l: log.New(w, "", log.LstdFlags)}
}

// Debug logs a debug message.
func (s *StdLogger) Debug(msg string, fields map[string]any) {
	s.log("debug", msg, fields)
}

// Info logs an info message.
func (s *StdLogger) Info(msg string, fields map[string]any) {
	s.log("info", msg, fields)
}

// Warn logs a warning message.
func (s *StdLogger) Warn(msg string, fields map[string]any) {
	s.log("warn", msg, fields)
}

// Error logs an error message.
func (s *StdLogger) Error(msg string, fields map[string]any) {
	s.log("error", msg, fields)
}

// logDebug, logInfo, logWarn and logError guard against nil loggers so call
// sites stay single-line.
func logDebug(l Logger, msg string, fields map[string]any) {
	if l != nil {
		l.Debug(msg, fields)
	}
}

func logInfo(l Logger, msg string, fields map[string]any) {
	if l != nil {
		l.Info(msg, fields)
	}
}

func logWarn(l Logger, msg string, fields map[string]any) {
	if l != nil {
		l.Warn(msg, fields)
	}
}

func logError(l Logger, msg string, fields map[string]any) {
	if l != nil {
		l.Error(msg, fields)
	}
}

func (s *StdLogger) log(level string, msg string, fields map[string]any) {
	if s == nil || s.l == nil {
		return
	}
	payload := map[string]any{
		"level": level,
		"msg":   msg,
	}
	for key, value := range fields {
		payload[key] = value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.l.Println(msg)
		return
	}
	s.l.Println(string(data))
}
