package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatJSON); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "impact detected",
		Int("frame", 42),
		Float64("timestamp", 1.4),
		Bool("scored", true),
		Duration("elapsed", 3*time.Millisecond),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "impact detected" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["frame"] != float64(42) {
		t.Errorf("unexpected frame field: %v", rec["frame"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := InitWithOptions(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	Get().Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("SetLevelString: %v", err)
	}
	Get().Debug(context.Background(), "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}

	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("segment").Warn(context.Background(), "no impacts", Error(errors.New("flat series")))
	if !strings.Contains(buf.String(), "segment.error") {
		t.Fatalf("expected grouped attributes, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info(context.Background(), "dropped")
	l.Named("x").Error(nil, "dropped too") //nolint:staticcheck // nil ctx must not panic
}
