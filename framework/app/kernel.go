// Package app is the composition root: it owns one resolver, one container
// and one module driver for the life of the process.
//
//	cfg := config.Load()
//	log, _ := logging.New(cfg.Log)
//	application := app.New(cfg, catalog, app.WithLogger(log))
//	if err := application.Boot(ctx); err != nil { ... }
//	defer application.Shutdown(context.Background())
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/config"
	"github.com/km-arc/go-plugkit/framework/container"
	"github.com/km-arc/go-plugkit/framework/discovery"
	"github.com/km-arc/go-plugkit/framework/logging"
	"github.com/km-arc/go-plugkit/framework/metrics"
	"github.com/km-arc/go-plugkit/framework/module"
	"github.com/km-arc/go-plugkit/framework/resolver"
	"github.com/km-arc/go-plugkit/framework/routing"
)

// ErrBooted is returned by Register once the application has booted.
var ErrBooted = errors.New("application already booted")

// Names under which Boot registers framework values in the container.
const (
	ConfigName = "config"
	LoggerName = "logger"
	PlanName   = "plan"
)

// Application wires discovery, resolution, the container and the module
// driver together.
type Application struct {
	cfg       *config.Config
	scanner   discovery.Scanner
	features  discovery.FeatureSource
	resolver  resolver.Interface
	factories *discovery.Factories

	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	mu        sync.Mutex
	extras    []extra
	booted    bool
	plan      *resolver.Plan
	container *container.Container
	driver    *module.Driver
}

type extra struct {
	name     string
	instance any
}

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the root logger. Components get named children of it.
func WithLogger(l *zap.Logger) Option {
	return func(a *Application) { a.log = l }
}

// WithFeatures replaces the feature source (the config's PLUGKIT_FEATURES by
// default).
func WithFeatures(fs discovery.FeatureSource) Option {
	return func(a *Application) { a.features = fs }
}

// WithResolver replaces the resolver.
func WithResolver(r resolver.Interface) Option {
	return func(a *Application) { a.resolver = r }
}

// WithRegistry records metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Application) { a.registry = reg }
}

// WithManifestFactories enables the PLUGKIT_MANIFEST discovery manifest,
// binding its entries to f. The manifest is scanned after scanner.
func WithManifestFactories(f discovery.Factories) Option {
	return func(a *Application) { a.factories = &f }
}

// New creates an application. Nothing is scanned or resolved until Boot.
func New(cfg *config.Config, scanner discovery.Scanner, opts ...Option) *Application {
	a := &Application{cfg: cfg, scanner: scanner, features: cfg}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrNop(a.log)
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = metrics.NewCollector(a.registry)
	if a.resolver == nil {
		a.resolver = resolver.New(resolver.WithLogger(a.log), resolver.WithMetrics(a.metrics))
	}
	if a.factories != nil && cfg.Plugkit.Manifest != "" {
		a.scanner = discovery.Chain(scanner, discovery.NewManifestScanner(cfg.Plugkit.Manifest, *a.factories))
	}
	return a
}

// Register adds a pre-built value to the container under name. It must be
// called before Boot.
//
//	application.Register("storage", store)
func (a *Application) Register(name string, instance any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.booted {
		return fmt.Errorf("app: register %s: %w", name, ErrBooted)
	}
	a.extras = append(a.extras, extra{name: name, instance: instance})
	return nil
}

// Boot scans, resolves, builds the container and enables every module.
//
// Scan failures, malformed versions and duplicate module names are fatal.
// Construction and module activation failures are not: they are logged and
// show up in Report and Bindings. Boot runs once; later calls return nil.
func (a *Application) Boot(ctx context.Context) error {
	driver, plan, err := a.prepare(ctx)
	if err != nil || driver == nil {
		return err
	}

	rep := driver.Enable(ctx)
	a.log.Info("application booted",
		zap.String("app", a.cfg.App.Name),
		zap.Int("contracts", len(plan.Contracts)),
		zap.Int("services", plan.ServiceCount()),
		zap.Int("modules", len(rep.Order)),
		zap.Int("failed", len(rep.Failed())))
	return nil
}

// prepare runs everything up to module activation under the lock. It returns
// a nil driver when the application was already booted.
func (a *Application) prepare(ctx context.Context) (*module.Driver, *resolver.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.booted {
		return nil, nil, nil
	}

	runtime, err := a.cfg.Runtime()
	if err != nil {
		return nil, nil, fmt.Errorf("app: boot: %w", err)
	}
	disc, err := a.scanner.Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("app: boot: %w", err)
	}
	a.log.Info("discovered",
		zap.Int("services", len(disc.Services)),
		zap.Int("contracts", len(disc.Contracts)),
		zap.Int("modules", len(disc.Modules)),
		zap.Stringer("runtime", runtime))

	plan, err := a.resolver.Resolve(ctx, resolver.Input{
		Candidates: disc.Services,
		Contracts:  disc.Contracts,
		Features:   a.features.CurrentFeatures(),
		Runtime:    runtime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: boot: %w", err)
	}

	c := container.Build(plan, container.WithLogger(a.log), container.WithMetrics(a.metrics))
	c.Instance(ConfigName, a.cfg)
	c.Instance(LoggerName, a.log)
	c.Instance(PlanName, plan)
	for _, e := range a.extras {
		c.Instance(e.name, e.instance)
	}

	if a.cfg.Plugkit.WarmSingletons {
		if err := c.Warm(); err != nil {
			a.log.Warn("singleton warm-up failed", zap.Error(err))
		}
	}

	driver := module.NewDriver(c, module.WithLogger(a.log), module.WithMetrics(a.metrics))
	for _, m := range disc.Modules {
		if err := driver.Add(m); err != nil {
			return nil, nil, fmt.Errorf("app: boot: %w", err)
		}
	}

	a.plan, a.container, a.driver = plan, c, driver
	a.booted = true
	return driver, plan, nil
}

// Shutdown disables every enabled module in reverse activation order.
func (a *Application) Shutdown(ctx context.Context) module.Report {
	a.mu.Lock()
	driver := a.driver
	a.mu.Unlock()
	if driver == nil {
		return module.Report{}
	}
	rep := driver.Disable(ctx)
	a.log.Info("application stopped", zap.Int("modules", len(rep.Order)), zap.Int("failed", len(rep.Failed())))
	return rep
}

// ── Accessors ─────────────────────────────────────────────────────────────────

// Config returns the application configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *Application) Logger() *zap.Logger { return a.log }

// Metrics returns the collector the framework records on.
func (a *Application) Metrics() *metrics.Collector { return a.metrics }

// Plan returns the resolved plan, or nil before Boot.
func (a *Application) Plan() *resolver.Plan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plan
}

// Container returns the container, or nil before Boot.
func (a *Application) Container() *container.Container {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.container
}

// Report returns the module activation report (empty before Boot).
func (a *Application) Report() module.Report {
	a.mu.Lock()
	driver := a.driver
	a.mu.Unlock()
	if driver == nil {
		return module.Report{}
	}
	return driver.Report()
}

// Bindings lists container bindings (none before Boot).
func (a *Application) Bindings() []container.BindingInfo {
	if c := a.Container(); c != nil {
		return c.Bindings()
	}
	return nil
}

// Modules lists modules in activation order (none before Boot).
func (a *Application) Modules() []module.Info {
	a.mu.Lock()
	driver := a.driver
	a.mu.Unlock()
	if driver == nil {
		return nil
	}
	return driver.Modules()
}

// Handler returns the diagnostics HTTP handler. It can be mounted before
// Boot; routes report 503 until the plan exists.
func (a *Application) Handler() http.Handler {
	return routing.Diagnostics(a, a.registry, a.log).Handler()
}
