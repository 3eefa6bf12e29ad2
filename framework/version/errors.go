package version

import (
	"errors"
	"fmt"
)

// ErrMalformedVersion is matched by every parse failure.
var ErrMalformedVersion = errors.New("malformed version")

// MalformedError describes a version string that could not be parsed.
type MalformedError struct {
	Raw    string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("version: parse %q: %s", e.Raw, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedVersion }
