package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// LogEntry is one message captured by RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Attr returns the value logged under key, or nil.
func (e LogEntry) Attr(key string) any {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1]
		}
	}
	return nil
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s %s %v", e.Level, e.Msg, e.Args)
}

// RecordingLogger captures every message so tests can assert on warnings.
// Safe for concurrent use.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Trace(msg string, args ...any) { l.record("TRACE", msg, args) }
func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Entries returns the captured messages at level, or all of them when level is "".
func (l *RecordingLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns the captured warning messages.
func (l *RecordingLogger) Warnings() []LogEntry {
	return l.Entries("WARN")
}

// HasMessage reports whether msg was logged at level.
func (l *RecordingLogger) HasMessage(level, msg string) bool {
	for _, e := range l.Entries(level) {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

// Dump formats every captured message, one per line, for failure output.
func (l *RecordingLogger) Dump() string {
	var b strings.Builder
	for _, e := range l.Entries("") {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
