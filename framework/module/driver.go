package module

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/container"
	"github.com/km-arc/go-plugkit/framework/logging"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/metrics"
)

// ── Report ────────────────────────────────────────────────────────────────────

// Outcome is the result of driving one module through a lifecycle pass.
type Outcome struct {
	Module string `json:"module"`
	State  State  `json:"state"`
	Err    error  `json:"-"`
	Reason string `json:"reason,omitempty"`
}

// Report lists the order a pass visited modules in and what happened to each.
type Report struct {
	Order    []string  `json:"order"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed returns the outcomes that carry an error.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// ── Driver ────────────────────────────────────────────────────────────────────

type entry struct {
	desc   metadata.ModuleDescriptor
	module Module
	index  int
	state  State
	err    error
}

// Driver activates modules by load-order tier, then discovery order, and
// deactivates them in exact reverse. All passes run sequentially; concurrent
// callers serialize on the driver.
type Driver struct {
	mu sync.Mutex

	container *container.Container
	entries   []*entry
	byName    map[string]*entry

	enabled   bool
	stopped   bool
	activated []*entry
	report    Report

	log     *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for per-module outcome records.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMetrics records module outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Driver) { d.metrics = m }
}

// NewDriver creates a driver whose modules are enabled against c.
func NewDriver(c *container.Container, opts ...Option) *Driver {
	d := &Driver{
		container: c,
		byName:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.OrNop(d.log).Named("module")
	return d
}

// Add registers a module. Call it in discovery order: the order of Add calls
// breaks ties within a load-order tier. Add fails with ErrStarted once Enable
// or Disable has run.
func (d *Driver) Add(desc metadata.ModuleDescriptor) error {
	m, ok := desc.Instance.(Module)
	if !ok {
		return fmt.Errorf("module: add %s: %w", desc.Name, ErrNotModule)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled || d.stopped {
		return fmt.Errorf("module: add %s: %w", desc.Name, ErrStarted)
	}
	if _, taken := d.byName[desc.Name]; taken {
		return fmt.Errorf("module: add %s: %w", desc.Name, ErrDuplicateModule)
	}
	e := &entry{desc: desc, module: m, index: len(d.entries)}
	d.entries = append(d.entries, e)
	d.byName[desc.Name] = e
	return nil
}

// Order returns module names in activation order: ascending tier, then
// discovery order.
func (d *Driver) Order() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return names(d.sorted())
}

func (d *Driver) sorted() []*entry {
	sorted := slices.Clone(d.entries)
	slices.SortStableFunc(sorted, func(a, b *entry) int {
		if a.desc.Order != b.desc.Order {
			return int(a.desc.Order) - int(b.desc.Order)
		}
		return a.index - b.index
	})
	return sorted
}

// Enable activates every registered module once. A module whose hook fails
// becomes Disabled and the pass continues; a module depending on one that is
// not Enabled at its turn is skipped and stays Unloaded. Later calls return
// the first report. After Disable, Enable activates nothing.
func (d *Driver) Enable(ctx context.Context) Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled {
		return d.report
	}
	d.enabled = true
	if d.stopped {
		d.log.Warn("enable after disable ignored", zap.Int("modules", len(d.entries)))
		return d.report
	}

	var rep Report
	for _, e := range d.sorted() {
		rep.Order = append(rep.Order, e.desc.Name)

		if missing := d.unmet(e); len(missing) > 0 {
			rep.Outcomes = append(rep.Outcomes, d.record(e, Outcome{
				Module: e.desc.Name,
				State:  Unloaded,
				Reason: "skipped: dependency not enabled: " + strings.Join(missing, ", "),
			}))
			continue
		}

		if err := guard(e.desc.Name, "enable", func() error { return e.module.Enable(ctx, d.container) }); err != nil {
			e.state, e.err = Disabled, err
			rep.Outcomes = append(rep.Outcomes, d.record(e, Outcome{Module: e.desc.Name, State: Disabled, Err: err}))
			continue
		}
		e.state = Enabled
		d.activated = append(d.activated, e)
		rep.Outcomes = append(rep.Outcomes, d.record(e, Outcome{Module: e.desc.Name, State: Enabled}))
	}

	d.report = rep
	d.log.Info("modules enabled",
		zap.Int("modules", len(d.entries)),
		zap.Int("enabled", len(d.activated)),
		zap.Int("failed", len(rep.Failed())))
	return rep
}

// Disable deactivates every Enabled module in exact reverse activation order.
// Hook failures are reported but never stop the pass. Disabled is terminal: a
// second call reports nothing and a later Enable activates nothing.
func (d *Driver) Disable(ctx context.Context) Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true

	var rep Report
	for i := len(d.activated) - 1; i >= 0; i-- {
		e := d.activated[i]
		rep.Order = append(rep.Order, e.desc.Name)

		err := guard(e.desc.Name, "disable", func() error { return e.module.Disable(ctx) })
		e.state, e.err = Disabled, err
		rep.Outcomes = append(rep.Outcomes, d.record(e, Outcome{Module: e.desc.Name, State: Disabled, Err: err}))
	}
	d.activated = nil
	return rep
}

// unmet returns the dependencies of e that are not Enabled (must hold mu).
func (d *Driver) unmet(e *entry) []string {
	var missing []string
	for _, dep := range e.desc.DependsOn {
		if other, ok := d.byName[dep]; !ok || other.state != Enabled {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (d *Driver) record(e *entry, o Outcome) Outcome {
	fields := []zap.Field{
		zap.String("module", o.Module),
		zap.Stringer("order", e.desc.Order),
		zap.Stringer("state", o.State),
	}
	switch {
	case o.Err != nil:
		d.log.Error("module transition failed", append(fields, zap.Error(o.Err))...)
	case o.Reason != "":
		d.log.Warn("module skipped", append(fields, zap.String("reason", o.Reason))...)
	default:
		d.log.Info("module transition", fields...)
	}
	d.metrics.ObserveModule(o.State.String())
	return o
}

// guard runs a hook, converting errors and panics into *ActivationError.
func guard(name, phase string, hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ActivationError{Module: name, Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := hook(); err != nil {
		return &ActivationError{Module: name, Phase: phase, Err: err}
	}
	return nil
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Info is a snapshot of one module, for diagnostics.
type Info struct {
	Name      string             `json:"name"`
	Order     metadata.LoadOrder `json:"-"`
	Tier      string             `json:"order"`
	DependsOn []string           `json:"dependsOn,omitempty"`
	State     State              `json:"state"`
	Error     string             `json:"error,omitempty"`
}

// Modules returns every registered module in activation order.
func (d *Driver) Modules() []Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	sorted := d.sorted()
	out := make([]Info, 0, len(sorted))
	for _, e := range sorted {
		info := Info{
			Name:      e.desc.Name,
			Order:     e.desc.Order,
			Tier:      e.desc.Order.String(),
			DependsOn: e.desc.DependsOn,
			State:     e.state,
		}
		if e.err != nil {
			info.Error = e.err.Error()
		}
		out = append(out, info)
	}
	return out
}

// State returns the current state of the named module.
func (d *Driver) State(name string) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byName[name]
	if !ok {
		return Unloaded, false
	}
	return e.state, true
}

// Report returns the report of the Enable pass (empty before Enable).
func (d *Driver) Report() Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report
}

func names(entries []*entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.desc.Name
	}
	return out
}
