package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultProfile: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "profile.toml")

	if err := SaveProfile(path, DefaultProfile()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLoadProfileMissingUsesDefaults(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "profile.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Server.WSURL != DefaultWSURL {
		t.Errorf("ws_url = %q, want %q", p.Server.WSURL, DefaultWSURL)
	}
	if p.Timing.ReconnectDelay.Duration != 3*time.Second {
		t.Errorf("reconnect_delay = %v, want 3s", p.Timing.ReconnectDelay)
	}
	if p.Identity.UserID != 0 {
		t.Errorf("user_id = %d, want 0", p.Identity.UserID)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")

	p := DefaultProfile()
	p.Server.WSURL = "ws://chat.example:9000/ws"
	p.Identity = Identity{UserID: 42, UserName: "ana", AccessToken: "a", RefreshToken: "r"}
	p.Timing.ReconnectDelay = Duration{1500 * time.Millisecond}
	if err := SaveProfile(path, p); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.WSURL != "ws://chat.example:9000/ws" {
		t.Errorf("ws_url = %q", loaded.Server.WSURL)
	}
	if loaded.Identity != p.Identity {
		t.Errorf("identity = %+v, want %+v", loaded.Identity, p.Identity)
	}
	if loaded.Timing.ReconnectDelay.Duration != 1500*time.Millisecond {
		t.Errorf("reconnect_delay = %v, want 1.5s", loaded.Timing.ReconnectDelay)
	}
}

func TestLoadProfilePartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	content := "[identity]\nuser_id = 7\n\n[timing]\ndial_timeout = \"2s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Identity.UserID != 7 {
		t.Errorf("user_id = %d, want 7", p.Identity.UserID)
	}
	if p.Timing.DialTimeout.Duration != 2*time.Second {
		t.Errorf("dial_timeout = %v, want 2s", p.Timing.DialTimeout)
	}
	if p.Timing.RequestTimeout.Duration != DefaultRequestTimeout {
		t.Errorf("request_timeout = %v, want default", p.Timing.RequestTimeout)
	}
	if p.Log.Level != "info" {
		t.Errorf("log level = %q, want info", p.Log.Level)
	}
}

func TestLoadProfileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte("[timing]\nreconnect_delay = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("LoadProfile() expected error for bad duration")
	}
}
