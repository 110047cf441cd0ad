package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the root of the profile tree.
const HomeEnv = "SIMCHAT_HOME"

// Files inside a profile directory.
const (
	socketFile  = "simd.sock"
	lockFile    = "LOCK"
	profileFile = "profile.toml"
	dbFile      = "simchat.db"
	logSubdir   = "logs"
	logFile     = "simd.log"
)

// BaseDir is the root of everything simchat keeps on disk: $SIMCHAT_HOME
// if set, ~/.simchat otherwise.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".simchat")
}

// ConfigPath is the file naming the default profile.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Dir holds one profile's state: <base>/profiles/<name>.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

func inProfile(name, file string) string { return filepath.Join(Dir(name), file) }

// SocketPath is where simd serves the control API and simctl dials it.
func SocketPath(name string) string { return inProfile(name, socketFile) }

// LockPath is flocked by the running daemon.
func LockPath(name string) string { return inProfile(name, lockFile) }

// ProfilePath holds server URLs, identity and timing for the profile.
func ProfilePath(name string) string { return inProfile(name, profileFile) }

// AppDBPath is the SQLite file backing durable history.
func AppDBPath(name string) string { return inProfile(name, dbFile) }

func LogDir(name string) string { return inProfile(name, logSubdir) }

// LogPath is the daemon's JSON log.
func LogPath(name string) string { return filepath.Join(LogDir(name), logFile) }

// EnsureDir creates the profile directory and its log directory with
// owner-only permissions. Existing directories are left as they are.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
