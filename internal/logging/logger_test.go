package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithProfileFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "simd.log")

	logger, err := New(Options{Path: logPath, Profile: "work", Level: "info", Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("started")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1 (debug filtered): %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "started" || entry["profile"] != "work" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
	if _, ok := entry["pid"]; !ok {
		t.Error("missing pid field")
	}
	if caller, _ := entry["caller"].(string); !strings.Contains(caller, "logger_test.go") {
		t.Errorf("caller = %q, want logger_test.go", caller)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Path: filepath.Join(t.TempDir(), "simd.log"), Level: "loud"}); err == nil {
		t.Fatal("New with level \"loud\" succeeded")
	}
}

func TestNewAppendsAcrossRestarts(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "simd.log")
	for _, msg := range []string{"first", "second"} {
		logger, err := New(Options{Path: logPath, Level: "info", Quiet: true})
		if err != nil {
			t.Fatal(err)
		}
		logger.Info(msg)
		_ = logger.Sync()
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("log has %d lines, want 2: %s", n, data)
	}
}
