package container

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"

	"github.com/km-arc/go-plugkit/framework/metadata"
)

// Scope selects how a binding produces instances.
type Scope string

const (
	// Singleton bindings construct once, on first lookup, and cache the
	// result (or the failure) for the life of the container.
	Singleton Scope = "singleton"
	// Factory bindings construct a new instance on every lookup.
	Factory Scope = "factory"
)

type slotState uint8

const (
	idle slotState = iota
	building
	done
)

// Binding is one materialized service entry.
type Binding struct {
	name           string
	implementation string
	contract       metadata.Contract
	scope          Scope
	construct      metadata.Constructor

	// singleton slot, guarded by Container.slots
	state    slotState
	builder  uint64
	ready    chan struct{}
	instance any
	err      error
}

func newBinding(desc metadata.ServiceDescriptor) *Binding {
	scope := Factory
	if desc.Singleton {
		scope = Singleton
	}
	return &Binding{
		name:           desc.Name,
		implementation: desc.Implementation,
		contract:       desc.Contract,
		scope:          scope,
		construct:      desc.New,
	}
}

// build runs the constructor, turning errors and panics into a
// *ConstructionError.
func (b *Binding) build() (instance any, err error) {
	if b.construct == nil {
		return nil, b.fail(errNoConstructor)
	}
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = b.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	instance, err = b.construct()
	if err != nil {
		return nil, b.fail(err)
	}
	return instance, nil
}

func (b *Binding) fail(err error) *ConstructionError {
	return &ConstructionError{Service: b.name, Implementation: b.implementation, Err: err}
}

// goroutineID reads the current goroutine's id from its stack header
// ("goroutine 18 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	s := buf[:runtime.Stack(buf[:], false)]
	s = bytes.TrimPrefix(s, []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, _ := strconv.ParseUint(string(s), 10, 64)
	return id
}
