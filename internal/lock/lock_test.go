package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "main", "LOCK")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid=") {
		t.Errorf("lock file = %q, want pid= prefix", data)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l1, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(path)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", held.PID, os.Getpid())
	}
	if held.Since.IsZero() {
		t.Error("Since not parsed from lock file")
	}
	if held.Path != path {
		t.Errorf("Path = %q, want %q", held.Path, path)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	_ = l2.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(filepath.Join(t.TempDir(), "LOCK"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	held := parseHolder("pid=123\ntime=2026-01-01T00:00:00Z\n")
	if held.PID != 123 {
		t.Errorf("PID = %d, want 123", held.PID)
	}
	if held.Since.Year() != 2026 {
		t.Errorf("Since = %v", held.Since)
	}
	if empty := parseHolder("garbage"); empty.PID != 0 || !empty.Since.IsZero() {
		t.Errorf("parseHolder(garbage) = %+v", empty)
	}
}

func TestHeldErrorMessage(t *testing.T) {
	err := parseHolder("pid=77\ntime=2026-05-01T10:00:00Z\n")
	err.Path = "/p/LOCK"
	if got := err.Error(); !strings.Contains(got, "pid 77") || !strings.Contains(got, "2026-05-01T10:00:00Z") {
		t.Errorf("Error() = %q", got)
	}

	anon := &HeldError{Path: "/p/LOCK"}
	if got := anon.Error(); strings.Contains(got, "since") {
		t.Errorf("Error() without a time = %q", got)
	}
}

func TestAcquireFailsWhenDirCannotBeCreated(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Acquire(filepath.Join(parent, "LOCK"))
	var held *HeldError
	if err == nil || errors.As(err, &held) {
		t.Errorf("Acquire() under a regular file = %v, want a non-HeldError failure", err)
	}
}
