package container

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnresolvedContract is returned when no service won a contract.
	ErrUnresolvedContract = errors.New("unresolved contract")
	// ErrUnknownService is returned when no service carries a name.
	ErrUnknownService = errors.New("unknown service")
	// ErrConstruction is matched by every *ConstructionError.
	ErrConstruction = errors.New("service construction failed")
	// ErrCycle is wrapped by the *ConstructionError of a lookup made from
	// inside a constructor that leads back to a binding still under
	// construction.
	ErrCycle = errors.New("lookup cycle")

	errNoConstructor = errors.New("no constructor")
)

// ConstructionError reports a constructor that failed or panicked. A failed
// singleton returns the same *ConstructionError on every later lookup.
type ConstructionError struct {
	Service        string
	Implementation string
	Err            error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("container: construct %s (%s): %v", e.Service, e.Implementation, e.Err)
}

func (e *ConstructionError) Unwrap() []error { return []error{ErrConstruction, e.Err} }

// TypeError reports a typed lookup whose instance has another type.
type TypeError struct {
	Key  string
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("container: [%s] resolved to %v, want %v", e.Key, e.Got, e.Want)
}
