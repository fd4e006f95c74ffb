package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/services"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"Warn":    slog.LevelWarn,
		" error ": slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "logfmt"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Options{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("poll complete", String("outcome", "ok"))
	logger.Debug("suppressed")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), data)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if record["msg"] != "poll complete" || record["level"] != "info" || record["outcome"] != "ok" {
		t.Fatalf("record: %v", record)
	}
	ts, ok := record["ts"].(string)
	if !ok {
		t.Fatalf("ts missing: %v", record)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("ts not RFC3339: %q", ts)
	}
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, level, false))

	WithComponent(logger, "daemon").Info("poll complete",
		Int("items", 2),
		String("note", "two words"),
	)
	logger.Debug("suppressed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	line := lines[0]
	if !strings.Contains(line, " INFO daemon: poll complete") {
		t.Fatalf("line: %q", line)
	}
	if !strings.Contains(line, "items=2") || !strings.Contains(line, `note="two words"`) {
		t.Fatalf("attrs missing: %q", line)
	}
	ts := strings.SplitN(line, " ", 2)[0]
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("timestamp prefix: %q", ts)
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, level, false))

	logger.WithGroup("drive").Info("listed", String("folder", "inbox"))

	if !strings.Contains(buf.String(), "drive.folder=inbox") {
		t.Fatalf("group not flattened: %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithInputID(ctx, "voice_42")
	ctx = services.WithStep(ctx, "transcribe")

	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, level, false))

	WithContext(ctx, logger).Info("claimed")

	line := buf.String()
	for _, want := range []string{"run_id=run-1", "input_id=voice_42", "step=transcribe"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}

	// A bare context adds nothing and a nil logger is replaced with a noop.
	if got := WithContext(context.Background(), logger); got != logger {
		t.Fatal("unannotated context should return the logger unchanged")
	}
	if WithContext(ctx, nil) == nil {
		t.Fatal("nil logger should yield a noop logger")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop logger should disable all levels")
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("started")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "murmur.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"started"`) {
		t.Fatalf("log file contents: %q", data)
	}
}
