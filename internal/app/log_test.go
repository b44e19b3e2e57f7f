package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fsindex/internal/config"
)

func TestIndexHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "root indexed",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\troot indexed\n",
		},
		{
			name:    "trace level has its own name",
			runID:   "run-456",
			level:   LevelTrace,
			message: "processing entry",
			want:    "2024-06-15T14:30:45Z\tTRACE\trun-456\tprocessing entry\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelWarn,
			message: "could not read owner",
			attrs:   []slog.Attr{slog.String("path", "/docs/file.txt"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tWARN\trun-789\tcould not read owner\tpath=/docs/file.txt\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newIndexHandler(&buf, tt.runID, LevelTrace)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestIndexHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newIndexHandler(&buf, "run-1", slog.LevelInfo)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "listener")}).(*indexHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "watching", 0)
	r.AddAttrs(slog.String("dir", "/data"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=listener") {
		t.Errorf("expected pre-set attr component=listener, got: %q", got)
	}
	if !strings.Contains(got, "dir=/data") {
		t.Errorf("expected record attr dir=/data, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestIndexHandler_Enabled(t *testing.T) {
	h := newIndexHandler(&bytes.Buffer{}, "run-1", slog.LevelInfo)

	tests := []struct {
		level slog.Level
		want  bool
	}{
		{LevelTrace, false},
		{slog.LevelDebug, false},
		{slog.LevelInfo, true},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "trace", want: LevelTrace},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "info", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	var stderr bytes.Buffer

	logger, closer, err := newLogger(dir, config.LogConfig{Level: "debug", MaxSizeMB: 1, MaxBackups: 1}, "test-run", &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	adapter := &slogAdapter{l: logger}
	adapter.Trace("hidden")
	adapter.Debug("shown", "n", 1)

	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "fsindex.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("trace record written below configured level: %q", data)
	}
	if !strings.Contains(string(data), "\tDEBUG\ttest-run\tshown\tn=1\n") {
		t.Errorf("log file = %q, want debug record", data)
	}
	if stderr.String() != string(data) {
		t.Errorf("stderr = %q, want same output as log file", stderr.String())
	}
}

func TestNewLogger_badLevel(t *testing.T) {
	_, _, err := newLogger(t.TempDir(), config.LogConfig{Level: "loud"}, "r", &bytes.Buffer{})
	if err == nil {
		t.Fatal("newLogger() error = nil, want error for unknown level")
	}
}
