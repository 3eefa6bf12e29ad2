package discovery

import (
	"context"
	"slices"
	"sync"

	"github.com/km-arc/go-plugkit/framework/metadata"
)

// ── Catalog ───────────────────────────────────────────────────────────────────

// Catalog is an in-process Scanner. Registration order is discovery order.
//
//	cat := discovery.NewCatalog()
//	cat.Contract(container.ContractOf[Economy]())
//	cat.Service("economy", newVaultEconomy,
//	    discovery.WithContract(container.ContractOf[Economy]()),
//	    discovery.WithSingleton(),
//	    discovery.WithAdapter("paper", "1.20", "1.21"),
//	)
//	cat.Module("shop", metadata.LoadOrderCore, &ShopModule{}, "economy")
type Catalog struct {
	mu        sync.Mutex
	services  []metadata.ServiceDescriptor
	contracts []metadata.Contract
	modules   []metadata.ModuleDescriptor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog { return &Catalog{} }

// ServiceOption adjusts a service descriptor at registration.
type ServiceOption func(*metadata.ServiceDescriptor)

// WithContract makes the service compete for contract.
func WithContract(contract metadata.Contract) ServiceOption {
	return func(d *metadata.ServiceDescriptor) { d.Contract = contract }
}

// WithSingleton gives the service singleton scope.
func WithSingleton() ServiceOption {
	return func(d *metadata.ServiceDescriptor) { d.Singleton = true }
}

// WithFeature gates the service: it survives only when feature being
// enabled equals enabled.
func WithFeature(feature string, enabled bool) ServiceOption {
	return func(d *metadata.ServiceDescriptor) {
		d.Feature = &metadata.FeatureGate{Feature: feature, Enabled: enabled}
	}
}

// WithAdapter declares the platform versions the service targets. It may be
// given several times.
func WithAdapter(platform string, versions ...string) ServiceOption {
	return func(d *metadata.ServiceDescriptor) {
		d.Adapters = append(d.Adapters, metadata.Adapter{Platform: platform, Versions: versions})
	}
}

// WithImplementation overrides the implementation identity shown in
// diagnostics (defaults to the service name).
func WithImplementation(impl string) ServiceOption {
	return func(d *metadata.ServiceDescriptor) { d.Implementation = impl }
}

// Service registers a service.
func (c *Catalog) Service(name string, ctor metadata.Constructor, opts ...ServiceOption) *Catalog {
	d := metadata.ServiceDescriptor{Name: name, Implementation: name, New: ctor}
	for _, opt := range opts {
		opt(&d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = append(c.services, d)
	return c
}

// Contract declares a contract so the resolver can report it when nothing
// satisfies it.
func (c *Catalog) Contract(contracts ...metadata.Contract) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range contracts {
		if !slices.Contains(c.contracts, ct) {
			c.contracts = append(c.contracts, ct)
		}
	}
	return c
}

// Module registers a module.
func (c *Catalog) Module(name string, order metadata.LoadOrder, instance any, dependsOn ...string) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules = append(c.modules, metadata.ModuleDescriptor{
		Name:      name,
		Order:     order,
		DependsOn: dependsOn,
		Instance:  instance,
	})
	return c
}

// Scan returns a copy of everything registered so far.
func (c *Catalog) Scan(ctx context.Context) (Discovery, error) {
	if err := ctx.Err(); err != nil {
		return Discovery{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := Discovery{
		Services:  slices.Clone(c.services),
		Contracts: slices.Clone(c.contracts),
		Modules:   slices.Clone(c.modules),
	}
	return d, d.Validate()
}
