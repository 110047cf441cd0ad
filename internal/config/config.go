package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.simchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile represents ~/.simchat/profiles/<name>/profile.toml.
type Profile struct {
	Server   Server   `toml:"server"`
	Identity Identity `toml:"identity"`
	Timing   Timing   `toml:"timing"`
	Log      Log      `toml:"log"`
}

type Server struct {
	WSURL  string `toml:"ws_url"`
	APIURL string `toml:"api_url"`
}

// Identity is the local user the engine acts as. A zero UserID means no
// identity is configured yet.
type Identity struct {
	UserID       int64  `toml:"user_id"`
	UserName     string `toml:"user_name"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

type Timing struct {
	ReconnectDelay Duration `toml:"reconnect_delay"`
	DialTimeout    Duration `toml:"dial_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type Log struct {
	Level string `toml:"level"`
	// Quiet keeps the daemon from echoing its log to stderr.
	Quiet bool `toml:"quiet"`
}

// Duration is a time.Duration written as "3s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const (
	DefaultWSURL          = "ws://localhost:8080/ws"
	DefaultAPIURL         = "http://localhost:8080"
	DefaultReconnectDelay = 3 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
)

// DefaultProfile returns a profile with every default applied and no identity.
func DefaultProfile() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

func (p *Profile) applyDefaults() {
	if p.Server.WSURL == "" {
		p.Server.WSURL = DefaultWSURL
	}
	if p.Server.APIURL == "" {
		p.Server.APIURL = DefaultAPIURL
	}
	if p.Timing.ReconnectDelay.Duration <= 0 {
		p.Timing.ReconnectDelay.Duration = DefaultReconnectDelay
	}
	if p.Timing.DialTimeout.Duration <= 0 {
		p.Timing.DialTimeout.Duration = DefaultDialTimeout
	}
	if p.Timing.RequestTimeout.Duration <= 0 {
		p.Timing.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if p.Log.Level == "" {
		p.Log.Level = DefaultLogLevel
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// LoadProfile reads a profile and fills in defaults. A missing file yields
// the default profile.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultProfile(), nil
		}
		return nil, err
	}
	p.applyDefaults()
	return &p, nil
}

// SaveProfile writes a profile. The file holds tokens, so it is 0600.
func SaveProfile(path string, p *Profile) error {
	return write(path, p)
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
