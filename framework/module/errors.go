package module

import (
	"errors"
	"fmt"
)

var (
	// ErrActivation is matched by every *ActivationError.
	ErrActivation = errors.New("module activation failed")
	// ErrDuplicateModule is returned by Add for a name already registered.
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrNotModule is returned by Add when the descriptor instance does not
	// implement Module.
	ErrNotModule = errors.New("instance does not implement module.Module")
	// ErrStarted is returned by Add once the driver has run a pass.
	ErrStarted = errors.New("module driver already started")
)

// ActivationError reports a module whose Enable or Disable hook failed or
// panicked.
type ActivationError struct {
	Module string
	Phase  string // "enable" or "disable"
	Err    error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("module: %s %s: %v", e.Phase, e.Module, e.Err)
}

func (e *ActivationError) Unwrap() []error { return []error{ErrActivation, e.Err} }
