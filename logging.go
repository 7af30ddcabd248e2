// logging.go: Pluggable logging for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"log/slog"
	"sync"
)

// Logger is the logging interface used by Settings and the Scheduler.
// Arguments after the message are key-value pairs.
//
// Severity conventions:
//   - Debug: unreadable or missing config files during a reparse
//   - Info: successful reparse, scheduler lifecycle
//   - Warn: parse failures that keep the previous values
//   - Error: failing hooks and failing appliers
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// NewNoOpLogger returns a silent logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(msg string, args ...any) {}
func (n *NoOpLogger) Info(msg string, args ...any)  {}
func (n *NoOpLogger) Warn(msg string, args ...any)  {}
func (n *NoOpLogger) Error(msg string, args ...any) {}

// With returns the same instance.
func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

// With returns a logger carrying args on every record.
func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: s.logger.With(args...)}
}

// TestLogger captures log records for assertions in tests.
type TestLogger struct {
	mu       sync.RWMutex
	Messages []TestLogMessage
	parent   *TestLogger
	context  []any
}

// TestLogMessage is one captured record.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger returns an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (t *TestLogger) record(level, msg string, args []any) {
	root := t
	for root.parent != nil {
		root = root.parent
	}
	all := make([]any, 0, len(t.context)+len(args))
	all = append(all, t.context...)
	all = append(all, args...)

	root.mu.Lock()
	defer root.mu.Unlock()
	root.Messages = append(root.Messages, TestLogMessage{Level: level, Message: msg, Args: all})
}

func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }
func (t *TestLogger) Info(msg string, args ...any)  { t.record("INFO", msg, args) }
func (t *TestLogger) Warn(msg string, args ...any)  { t.record("WARN", msg, args) }
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With returns a child logger whose records land in the same buffer.
func (t *TestLogger) With(args ...any) Logger {
	ctx := make([]any, 0, len(t.context)+len(args))
	ctx = append(ctx, t.context...)
	ctx = append(ctx, args...)
	return &TestLogger{parent: t, context: ctx}
}

// HasMessage reports whether a record with the given level and message was
// captured.
func (t *TestLogger) HasMessage(level, message string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, msg := range t.Messages {
		if msg.Level == level && msg.Message == message {
			return true
		}
	}
	return false
}

// Count returns the number of records captured at level.
func (t *TestLogger) Count(level string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, msg := range t.Messages {
		if msg.Level == level {
			n++
		}
	}
	return n
}
