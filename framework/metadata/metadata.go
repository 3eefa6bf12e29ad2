// Package metadata holds the declarative facts attached to every discovered
// service and module. Values are plain data; nothing here inspects types at
// run time, and nothing here is mutated after discovery.
package metadata

import (
	"fmt"
	"strings"
)

// Contract identifies an abstract capability. By convention it is the
// package-qualified name of the Go interface the implementations satisfy
// (see container.TypeKey). The empty contract means "standalone".
type Contract string

// Constructor builds a new instance of a service implementation.
type Constructor func() (any, error)

// FeatureGate restricts a service to hosts where Feature is enabled
// (Enabled == true) or disabled (Enabled == false).
type FeatureGate struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// Allows reports whether the gate passes for the given feature set.
func (g *FeatureGate) Allows(features FeatureSet) bool {
	if g == nil {
		return true
	}
	return features.Has(g.Feature) == g.Enabled
}

func (g *FeatureGate) String() string {
	if g == nil {
		return "<none>"
	}
	if g.Enabled {
		return "+" + g.Feature
	}
	return "-" + g.Feature
}

// Adapter declares the platform versions an implementation targets.
type Adapter struct {
	Platform string   `json:"platform"`
	Versions []string `json:"versions"`
}

// ServiceDescriptor is everything the resolver knows about one service.
type ServiceDescriptor struct {
	// Implementation is the identity of the concrete type, used in logs and
	// diagnostics.
	Implementation string
	// Name is the logical lookup name.
	Name      string
	Singleton bool
	Contract  Contract
	Feature   *FeatureGate
	Adapters  []Adapter
	New       Constructor
}

// HasContract reports whether the service competes for a contract.
func (d ServiceDescriptor) HasContract() bool { return d.Contract != "" }

// HasAdapters reports whether the service declares any platform adapter.
func (d ServiceDescriptor) HasAdapters() bool { return len(d.Adapters) > 0 }

// ID is a compact identifier for log lines: "name(implementation)".
func (d ServiceDescriptor) ID() string {
	if d.Implementation == "" || d.Implementation == d.Name {
		return d.Name
	}
	return d.Name + "(" + d.Implementation + ")"
}

// Validate checks the structural requirements every descriptor must meet
// before it is handed to the resolver.
func (d ServiceDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("metadata: service %q has no name", d.Implementation)
	}
	if d.New == nil {
		return fmt.Errorf("metadata: service %q has no constructor", d.Name)
	}
	for _, a := range d.Adapters {
		if a.Platform == "" {
			return fmt.Errorf("metadata: service %q declares an adapter without platform", d.Name)
		}
		if len(a.Versions) == 0 {
			return fmt.Errorf("metadata: service %q declares adapter %q without versions", d.Name, a.Platform)
		}
	}
	if d.Feature != nil && d.Feature.Feature == "" {
		return fmt.Errorf("metadata: service %q declares an empty feature gate", d.Name)
	}
	return nil
}

// ── Features ──────────────────────────────────────────────────────────────────

// FeatureSet is the set of enabled feature identifiers.
type FeatureSet map[string]struct{}

// NewFeatureSet builds a set from names, ignoring blanks.
func NewFeatureSet(names ...string) FeatureSet {
	fs := make(FeatureSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		fs[n] = struct{}{}
	}
	return fs
}

// Has reports whether name is enabled. A nil set has nothing enabled.
func (fs FeatureSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}
