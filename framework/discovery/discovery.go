// Package discovery feeds declared services, contracts and modules to the
// resolver.
//
// A Scanner yields plain descriptors in discovery order; that order is the
// tie-break order for contract contention and for modules within a tier.
// Catalog registers descriptors from Go code, ManifestScanner reads them from
// a YAML manifest, and Chain concatenates scanners.
package discovery

import (
	"context"
	"fmt"

	"github.com/km-arc/go-plugkit/framework/metadata"
)

// Discovery is the result of one scan.
type Discovery struct {
	Services  []metadata.ServiceDescriptor
	Contracts []metadata.Contract
	Modules   []metadata.ModuleDescriptor
}

// Scanner produces the descriptors of everything available to the
// application.
type Scanner interface {
	Scan(ctx context.Context) (Discovery, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context) (Discovery, error)

func (f ScannerFunc) Scan(ctx context.Context) (Discovery, error) { return f(ctx) }

// Chain scans each scanner in turn and concatenates the results, keeping
// their order. Contracts declared more than once are kept once.
func Chain(scanners ...Scanner) Scanner {
	return ScannerFunc(func(ctx context.Context) (Discovery, error) {
		var out Discovery
		seen := make(map[metadata.Contract]bool)
		for _, s := range scanners {
			d, err := s.Scan(ctx)
			if err != nil {
				return Discovery{}, err
			}
			out.Services = append(out.Services, d.Services...)
			out.Modules = append(out.Modules, d.Modules...)
			for _, c := range d.Contracts {
				if !seen[c] {
					seen[c] = true
					out.Contracts = append(out.Contracts, c)
				}
			}
		}
		return out, nil
	})
}

// Validate checks every service descriptor and rejects modules without a
// name or instance.
func (d Discovery) Validate() error {
	for _, s := range d.Services {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, m := range d.Modules {
		if m.Name == "" {
			return fmt.Errorf("discovery: module without name")
		}
		if m.Instance == nil {
			return fmt.Errorf("discovery: module %s has no instance", m.Name)
		}
	}
	return nil
}

// ── Features ──────────────────────────────────────────────────────────────────

// FeatureSource reports the enabled features. It is read once per resolution.
type FeatureSource interface {
	CurrentFeatures() metadata.FeatureSet
}

// StaticFeatures is a fixed feature list.
type StaticFeatures []string

func (s StaticFeatures) CurrentFeatures() metadata.FeatureSet {
	return metadata.NewFeatureSet(s...)
}
