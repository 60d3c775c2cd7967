package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.zapdesk, so they are
// limited to a lowercase slug.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that cannot safely be used as a session
// directory.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: want 1-64 characters of [a-z0-9_-]", name)
	}
	return nil
}
