package container

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/logging"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/metrics"
	"github.com/km-arc/go-plugkit/framework/resolver"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Container serves the bindings of a resolved plan.
//
// The contract and name indexes are fixed by Build; afterwards only Instance
// and Alias change them. Singleton slots live under a separate lock that is
// never held while a constructor runs, so introspection never waits on a
// slow constructor.
type Container struct {
	mu sync.RWMutex

	// contract → winning binding
	contracts map[metadata.Contract]*Binding

	// name → binding (winners and standalone)
	names map[string]*Binding

	// alias → name
	aliases map[string]string

	// registration order, for Warm and Bindings
	order []*Binding

	afterResolving []func(name string, instance any)

	// singleton slots, build stack per goroutine, singleton each blocked
	// goroutine waits on
	slots   sync.Mutex
	stacks  map[uint64][]*Binding
	waiting map[uint64]*Binding

	log     *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for construction diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) { c.log = l }
}

// WithMetrics records lookups and construction failures on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Container) { c.metrics = m }
}

// New creates an empty container. The container is registered under the
// name "container" so modules can reach it by name.
func New(opts ...Option) *Container {
	c := &Container{
		contracts: make(map[metadata.Contract]*Binding),
		names:     make(map[string]*Binding),
		aliases:   make(map[string]string),
		stacks:    make(map[uint64][]*Binding),
		waiting:   make(map[uint64]*Binding),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log).Named("container")
	c.Instance("container", c)
	return c
}

// Build creates a container holding every binding of plan: winners under
// their contract and name, standalone services under their name.
//
// When two services declare the same name, the one registered first keeps it
// (contract winners first, then standalone services in discovery order). A
// shadowed winner stays reachable through its contract; a shadowed standalone
// service is unreachable and dropped.
func Build(plan *resolver.Plan, opts ...Option) *Container {
	c := New(opts...)

	for _, contract := range plan.ContractOrder {
		b := newBinding(plan.Contracts[contract])
		c.contracts[contract] = b
		c.add(b)
	}
	for _, desc := range plan.Standalone {
		c.add(newBinding(desc))
	}
	return c
}

func (c *Container) add(b *Binding) {
	if owner, taken := c.names[b.name]; taken {
		reachable := c.reachable(b)
		c.log.Warn("service name already bound, keeping first registration",
			zap.String("name", b.name),
			zap.String("kept", owner.implementation),
			zap.String("shadowed", b.implementation),
			zap.Bool("reachable", reachable))
		if reachable {
			c.order = append(c.order, b)
		}
		return
	}
	c.names[b.name] = b
	c.order = append(c.order, b)
}

// reachable reports whether some lookup still leads to b (must hold mu).
func (c *Container) reachable(b *Binding) bool {
	if c.names[b.name] == b {
		return true
	}
	return b.contract != "" && c.contracts[b.contract] == b
}

// ── Registration ──────────────────────────────────────────────────────────────

// Instance registers a pre-built value as a singleton under name, replacing
// any binding that already owned the name. A replaced contract winner stays
// reachable through its contract; any other replaced binding is dropped.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(name string, instance any) {
	b := &Binding{
		name:           name,
		implementation: fmt.Sprintf("%T", instance),
		scope:          Singleton,
		state:          done,
		instance:       instance,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, taken := c.names[name]; taken {
		c.log.Warn("service name rebound to instance",
			zap.String("name", name),
			zap.String("replaced", owner.implementation),
			zap.String("implementation", b.implementation))
	}
	c.names[name] = b
	c.order = slices.DeleteFunc(c.order, func(o *Binding) bool { return !c.reachable(o) })
	c.order = append(c.order, b)
}

// Alias makes alias resolve to the service registered as name.
//
//	c.Alias("economy", "eco")
func (c *Container) Alias(name, alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == alias {
		panic(fmt.Sprintf("container: [%s] is aliased to itself", name))
	}
	c.aliases[alias] = c.canonical(name)
}

// AfterResolving registers a callback fired after every successful
// construction (once per singleton, once per factory lookup).
func (c *Container) AfterResolving(cb func(name string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// Lookup returns the instance of the service bound to contract. It fails with
// ErrUnresolvedContract when nothing won the contract, and with a
// *ConstructionError when the constructor failed.
func (c *Container) Lookup(contract metadata.Contract) (any, error) {
	c.mu.RLock()
	b, ok := c.contracts[contract]
	c.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnresolvedContract, contract)
		c.metrics.ObserveLookup("contract", err)
		return nil, err
	}
	instance, err := c.get(b)
	c.metrics.ObserveLookup("contract", err)
	return instance, err
}

// LookupName returns the instance of the service registered as name (or an
// alias of it). It fails with ErrUnknownService for unknown names.
func (c *Container) LookupName(name string) (any, error) {
	c.mu.RLock()
	b, ok := c.names[c.canonical(name)]
	c.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownService, name)
		c.metrics.ObserveLookup("name", err)
		return nil, err
	}
	instance, err := c.get(b)
	c.metrics.ObserveLookup("name", err)
	return instance, err
}

// ── Construction ──────────────────────────────────────────────────────────────

// get returns the instance of b for one lookup. A singleton under
// construction by another goroutine is awaited; a lookup that would close a
// loop of constructors fails with ErrCycle instead.
func (c *Container) get(b *Binding) (any, error) {
	g := goroutineID()

	c.slots.Lock()
	if path := c.cycle(g, b); path != nil {
		c.slots.Unlock()
		return nil, c.failed(b, b.fail(fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))))
	}
	if b.scope == Singleton {
		switch b.state {
		case done:
			instance, err := b.instance, b.err
			c.slots.Unlock()
			return instance, err
		case building:
			ready := b.ready
			c.waiting[g] = b
			c.slots.Unlock()
			<-ready

			c.slots.Lock()
			delete(c.waiting, g)
			instance, err := b.instance, b.err
			c.slots.Unlock()
			return instance, err
		}
		b.state, b.builder, b.ready = building, g, make(chan struct{})
	}
	c.stacks[g] = append(c.stacks[g], b)
	c.slots.Unlock()

	instance, err := b.build()

	c.slots.Lock()
	if stack := c.stacks[g]; len(stack) > 1 {
		c.stacks[g] = stack[:len(stack)-1]
	} else {
		delete(c.stacks, g)
	}
	if b.scope == Singleton {
		b.state, b.instance, b.err = done, instance, err
		close(b.ready)
	}
	c.slots.Unlock()

	if err != nil {
		return nil, c.failed(b, err)
	}
	c.fireAfterResolving(b.name, instance)
	return instance, nil
}

// cycle returns the lookup path that goroutine g would close by looking up b,
// or nil. The loop is either b already on g's build stack, or b's builder
// waiting (through other builders) on a singleton g is building. Must hold
// slots.
func (c *Container) cycle(g uint64, b *Binding) []string {
	stack := c.stacks[g]
	for i, s := range stack {
		if s == b {
			path := make([]string, 0, len(stack)-i+1)
			for _, e := range stack[i:] {
				path = append(path, e.name)
			}
			return append(path, b.name)
		}
	}
	if b.scope != Singleton || b.state != building {
		return nil
	}

	path := []string{b.name}
	owner := b.builder
	for range len(c.waiting) {
		w, ok := c.waiting[owner]
		if !ok || w.state != building {
			return nil
		}
		path = append(path, w.name)
		if w.builder == g {
			return append(path, b.name)
		}
		owner = w.builder
	}
	return nil
}

func (c *Container) failed(b *Binding, err error) error {
	c.metrics.ObserveConstructionFailure(b.name)
	c.log.Error("service construction failed",
		zap.String("service", b.name),
		zap.String("implementation", b.implementation),
		zap.Error(err))
	return err
}

// Warm constructs every singleton that has not been constructed yet, in
// registration order, and returns the joined construction failures.
func (c *Container) Warm() error {
	c.mu.RLock()
	bindings := append([]*Binding(nil), c.order...)
	c.mu.RUnlock()

	var errs []error
	for _, b := range bindings {
		if b.scope != Singleton {
			continue
		}
		if _, err := c.get(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Bound reports whether name (or an alias) is registered.
func (c *Container) Bound(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[c.canonical(name)]
	return ok
}

// BoundContract reports whether contract has a winner.
func (c *Container) BoundContract(contract metadata.Contract) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.contracts[contract]
	return ok
}

// Resolved reports whether the singleton registered as name has been
// constructed successfully. Factories never count as resolved.
func (c *Container) Resolved(name string) bool {
	c.mu.RLock()
	b, ok := c.names[c.canonical(name)]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return c.info(b, false).Resolved
}

// BindingInfo is a snapshot of one binding, for diagnostics.
type BindingInfo struct {
	Name           string            `json:"name"`
	Implementation string            `json:"implementation"`
	Contract       metadata.Contract `json:"contract,omitempty"`
	Scope          Scope             `json:"scope"`
	Resolved       bool              `json:"resolved"`
	Building       bool              `json:"building,omitempty"`
	Failed         bool              `json:"failed"`
	Error          string            `json:"error,omitempty"`
	// Shadowed is set on a contract winner whose name belongs to another
	// binding.
	Shadowed bool `json:"shadowed,omitempty"`
}

// Bindings returns a snapshot of every reachable binding, sorted by name.
// It does not wait for constructors in progress.
func (c *Container) Bindings() []BindingInfo {
	c.mu.RLock()
	bindings := append([]*Binding(nil), c.order...)
	shadowed := make([]bool, len(bindings))
	for i, b := range bindings {
		shadowed[i] = c.names[b.name] != b
	}
	c.mu.RUnlock()

	out := make([]BindingInfo, 0, len(bindings))
	for i, b := range bindings {
		out = append(out, c.info(b, shadowed[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Container) info(b *Binding, shadowed bool) BindingInfo {
	info := BindingInfo{
		Name:           b.name,
		Implementation: b.implementation,
		Contract:       b.contract,
		Scope:          b.scope,
		Shadowed:       shadowed,
	}
	if b.scope == Singleton {
		c.slots.Lock()
		info.Building = b.state == building
		info.Resolved = b.state == done && b.err == nil
		if b.err != nil {
			info.Failed = true
			info.Error = b.err.Error()
		}
		c.slots.Unlock()
	}
	return info
}

// canonical resolves an alias to its name (must hold mu).
func (c *Container) canonical(name string) string {
	if target, ok := c.aliases[name]; ok {
		return target
	}
	return name
}

func (c *Container) fireAfterResolving(name string, instance any) {
	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(name, instance)
	}
}

// ── Type helpers ──────────────────────────────────────────────────────────────

// ContractOf returns the package-qualified name of T, the conventional
// contract identity for an interface.
//
//	contract := container.ContractOf[Economy]()  // "example.com/plugin.Economy"
func ContractOf[T any]() metadata.Contract {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return metadata.Contract(t.PkgPath() + "." + t.Name())
}

// Resolve looks up contract and asserts the instance to T.
//
//	eco, err := container.Resolve[Economy](c, container.ContractOf[Economy]())
func Resolve[T any](c *Container, contract metadata.Contract) (T, error) {
	instance, err := c.Lookup(contract)
	if err != nil {
		var zero T
		return zero, err
	}
	return assertType[T](string(contract), instance)
}

// ResolveName looks up name and asserts the instance to T.
func ResolveName[T any](c *Container, name string) (T, error) {
	instance, err := c.LookupName(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return assertType[T](name, instance)
}

// MustResolve is like Resolve but panics on any error. Use it only where a
// missing contract is a programming error.
func MustResolve[T any](c *Container, contract metadata.Contract) T {
	v, err := Resolve[T](c, contract)
	if err != nil {
		panic(err)
	}
	return v
}

func assertType[T any](key string, instance any) (T, error) {
	typed, ok := instance.(T)
	if !ok {
		var zero T
		return zero, &TypeError{Key: key, Want: reflect.TypeFor[T](), Got: reflect.TypeOf(instance)}
	}
	return typed, nil
}
