package session

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is returned for instance names that cannot be used as a
// directory name or a CLI argument.
var ErrInvalidName = errors.New("invalid instance name")

// Names start with a letter or digit so they never parse as a flag.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name conforms to instance naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z 0-9 _ - starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}
