package session

import (
	"errors"
	"fmt"
)

const maxNameLen = 64

// ErrInvalidName is wrapped by every ValidateName failure.
var ErrInvalidName = errors.New("invalid profile name")

// ValidateName reports whether name can be used as a profile directory:
// 1 to 64 characters from [a-z0-9_-].
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w %q: longer than %d characters", ErrInvalidName, name, maxNameLen)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fmt.Errorf("%w %q: character %q not in [a-z0-9_-]", ErrInvalidName, name, r)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-'
}
