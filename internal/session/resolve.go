package session

import (
	"errors"
	"io/fs"
	"os"

	"github.com/matheus3301/simchat/internal/config"
)

const (
	DefaultProfileName = "main"

	// ProfileEnv selects the profile when no --profile flag is given.
	ProfileEnv = "SIMCHAT_PROFILE"
)

// Resolve picks the active profile: the flag, then $SIMCHAT_PROFILE, then
// default_profile from config.toml, then "main". The result is validated.
func Resolve(flagOverride string) (string, error) {
	name, err := pick(flagOverride)
	if err != nil {
		return "", err
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func pick(flagOverride string) (string, error) {
	if flagOverride != "" {
		return flagOverride, nil
	}
	if env := os.Getenv(ProfileEnv); env != "" {
		return env, nil
	}
	cfg, err := config.Load(ConfigPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return DefaultProfileName, nil
	case err != nil:
		return "", err
	case cfg.DefaultProfile != "":
		return cfg.DefaultProfile, nil
	}
	return DefaultProfileName, nil
}
