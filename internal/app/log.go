package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"fsindex/internal/config"
)

// LevelTrace is below slog.LevelDebug and carries per-entry traversal detail.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a configured level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", name)
	}
}

func levelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}

// indexHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
type indexHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	runID    string
	minLevel slog.Level
	attrs    []slog.Attr
}

func newIndexHandler(w io.Writer, runID string, minLevel slog.Level) *indexHandler {
	return &indexHandler{mu: &sync.Mutex{}, w: w, runID: runID, minLevel: minLevel}
}

func (h *indexHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *indexHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&sb, "%s\t%s\t%s\t%s", ts, levelName(r.Level), h.runID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&sb, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, "\t%s=%v", a.Key, a.Value)
		return true
	})
	sb.WriteByte('\n')

	// The listener logs from its event goroutine while the CLI logs from main.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *indexHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &indexHandler{
		mu:       h.mu,
		w:        h.w,
		runID:    h.runID,
		minLevel: h.minLevel,
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *indexHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to a size-rotated
// logDir/fsindex.log and to stderr. The returned closer closes the log file.
func newLogger(logDir string, cfg config.LogConfig, runID string, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "fsindex.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}

	w := io.MultiWriter(rotator, stderr)
	return slog.New(newIndexHandler(w, runID, level)), rotator, nil
}

// slogAdapter wraps *slog.Logger to satisfy the indexer.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Trace(msg string, args ...any) {
	a.l.Log(context.Background(), LevelTrace, msg, args...)
}
func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
