package module

import (
	"context"

	"github.com/km-arc/go-plugkit/framework/container"
)

// ── Module interface ──────────────────────────────────────────────────────────

// Module is a coordinated unit of behaviour driven through the lifecycle
// Unloaded → Enabled → Disabled.
//
// Enable runs once the container is built, so every service is available:
//
//	type EconomyModule struct{ module.BaseModule }
//
//	func (m *EconomyModule) Enable(ctx context.Context, c *container.Container) error {
//	    eco, err := container.Resolve[Economy](c, container.ContractOf[Economy]())
//	    if err != nil {
//	        return err
//	    }
//	    m.eco = eco
//	    return nil
//	}
type Module interface {
	// Enable activates the module. An error (or panic) leaves the module
	// Disabled; the driver moves on to the next module.
	Enable(ctx context.Context, c *container.Container) error

	// Disable is called once, in reverse activation order, for modules that
	// enabled successfully.
	Disable(ctx context.Context) error
}

// ── BaseModule ────────────────────────────────────────────────────────────────

// BaseModule supplies no-op hooks. Embed it and override what you need.
//
//	type AuditModule struct{ module.BaseModule }
type BaseModule struct{}

func (BaseModule) Enable(context.Context, *container.Container) error { return nil }
func (BaseModule) Disable(context.Context) error                      { return nil }

// Func adapts a pair of functions to Module. Either may be nil.
type Func struct {
	OnEnable  func(ctx context.Context, c *container.Container) error
	OnDisable func(ctx context.Context) error
}

func (f Func) Enable(ctx context.Context, c *container.Container) error {
	if f.OnEnable == nil {
		return nil
	}
	return f.OnEnable(ctx, c)
}

func (f Func) Disable(ctx context.Context) error {
	if f.OnDisable == nil {
		return nil
	}
	return f.OnDisable(ctx)
}

// ── State ─────────────────────────────────────────────────────────────────────

// State is the lifecycle position of a module.
type State int

const (
	Unloaded State = iota
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Enabled:
		return "ENABLED"
	case Disabled:
		return "DISABLED"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name in JSON diagnostics.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
