// Package container turns a resolved plan into lookups.
//
// # Overview
//
// Build takes the plan produced by the resolver and creates one binding per
// service: contract winners are reachable by contract and by name, standalone
// services by name only.
//
//	plan, err := resolver.New().Resolve(ctx, in)
//	c := container.Build(plan, container.WithLogger(log))
//
// # Scopes
//
// A singleton binding constructs its instance on first lookup and returns the
// same instance afterwards. Concurrent first lookups wait for the first one,
// so the constructor runs exactly once. A failed constructor is not retried:
// every later lookup returns the same *ConstructionError.
//
// A factory binding runs its constructor on every lookup.
//
//	// Warm forces every singleton now, e.g. right after boot.
//	if err := c.Warm(); err != nil { ... }
//
// # Lookup
//
//	raw, err := c.Lookup(container.ContractOf[Economy]())
//	raw, err  = c.LookupName("economy")
//
//	// Typed (preferred)
//	eco, err := container.Resolve[Economy](c, container.ContractOf[Economy]())
//	eco, err  = container.ResolveName[Economy](c, "economy")
//
// Missing contracts fail with ErrUnresolvedContract and unknown names with
// ErrUnknownService. Both are expected conditions; callers decide whether an
// absent service matters.
//
// # Pre-built values
//
//	c.Instance("config", cfg)
//	c.Alias("config", "configuration")
//
// The container registers itself as "container". Constructors that need other
// services capture the container and look them up. A lookup that leads back
// to a binding still under construction, directly or through other
// constructors, fails with a *ConstructionError wrapping ErrCycle:
//
//	a := func() (any, error) { return c.LookupName("b") }
//	b := func() (any, error) { return c.LookupName("a") }
//	_, err := c.LookupName("a") // errors.Is(err, container.ErrCycle)
//
// Instance replaces the owner of a name. Bindings lists only what a lookup
// can still reach.
package container
